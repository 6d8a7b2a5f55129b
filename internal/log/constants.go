package log

const (
	KeyAppName            = "app"
	KeyRequestID          = "requestId"
	KeyProcess            = "process"
	KeyTag                = "tag"
	KeyConfig             = "config"
	KeyRequest            = "request"
	KeyRequestBody        = "requestBody"
	KeyRequestHeader      = "requestHeader"
	KeyRequestHost        = "host"
	KeyRequestIp          = "requesterIP"
	KeyRequestMethod      = "requestMethod"
	KeyRequestURI         = "requestURI"
	KeyRequestURL         = "requestURL"
	KeyTraceID            = "traceId"
	KeySpanID             = "spanId"
	KeyCacheKey           = "cacheKey"
	KeyStorageKey         = "storageKey"
	KeyCartID             = "cartId"
	KeyCart               = "cart"
	KeyCartItemID         = "cartItemId"
	KeyCartItemsCount     = "cartItemsCount"
	KeyCartTotalItems     = "cartTotalItems"
	KeyCartItemQuantity   = "cartItemQuantity"
	KeyCartMergedQuantity = "cartMergedQuantity"
	KeyCartExpiresAt      = "cartExpiresAt"
	KeyCartsCount         = "cartsCount"
	KeyCartsEvicted       = "cartsEvicted"
	KeyProductID          = "productId"
	KeyProductSlug        = "productSlug"
	KeyCoordinatorID      = "coordinatorId"
	KeySessionState       = "sessionState"
	KeySessionExpiresAt   = "sessionExpiresAt"
	KeyTokenFingerprint   = "tokenFingerprint"
	KeyCheckoutState      = "checkoutState"
	KeyDraftOrderIDs      = "draftOrderIds"
	KeyPartialFailures    = "partialFailures"
	KeyRedirectURL        = "redirectUrl"
	KeyEndpoint           = "endpoint"
	KeyStatusCode         = "statusCode"
	KeyPhotoURL           = "photoUrl"
	KeyDbURL              = "dbUrl"
	KeyBrokerURL          = "brokerUrl"
)
