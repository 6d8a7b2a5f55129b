package request

import (
	"github.com/shopspring/decimal"

	"github.com/Alturino/makelocal/cart/pkg/response"
)

// AddItem is a cart line without the id and timestamp the store assigns.
// A zero Quantity means one.
type AddItem struct {
	ProductID      string                   `json:"productId"      validate:"required"`
	ProductSlug    string                   `json:"productSlug"`
	ProductName    string                   `json:"productName"    validate:"required"`
	BasePrice      decimal.Decimal          `json:"basePrice"      validate:"gte=0"`
	Customizations *response.Customizations `json:"customizations"`
	Quantity       int                      `json:"quantity"       validate:"gte=0"`
}

type UpdateQuantity struct {
	Quantity int `json:"quantity"`
}
