package constants

const (
	AppMakeLocal   = "makelocal"
	AppCartService = "cart-service"
	AppOrderStatus = "order-status-watcher"
	AppCatalog     = "catalog"
)
