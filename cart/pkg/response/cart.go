package response

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as JSON numbers, matching the stored cart records.
	decimal.MarshalJSONWithoutQuotes = true
}

// Customizations is the personalization attached to a cart line. An absent
// field and an empty one are the same customization.
type Customizations struct {
	Text    string `json:"text,omitempty"`
	ColorID string `json:"colorId,omitempty"`
}

func (c *Customizations) Equal(other *Customizations) bool {
	var a, b Customizations
	if c != nil {
		a = *c
	}
	if other != nil {
		b = *other
	}
	return a == b
}

func (c *Customizations) IsEmpty() bool {
	return c == nil || *c == Customizations{}
}

type CartItem struct {
	ID             string          `json:"id"`
	ProductID      string          `json:"productId"      validate:"required"`
	ProductSlug    string          `json:"productSlug"`
	ProductName    string          `json:"productName"    validate:"required"`
	BasePrice      decimal.Decimal `json:"basePrice"      validate:"gte=0"`
	Customizations *Customizations `json:"customizations"`
	Quantity       int             `json:"quantity"       validate:"gte=1,lte=10"`
	AddedAt        time.Time       `json:"addedAt"`
}

type Cart struct {
	Items        []CartItem `json:"items"`
	SessionToken string     `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	ExpiresAt    time.Time  `json:"expiresAt"`
}

// Clone copies the cart deep enough that mutating the copy never touches c.
func (c Cart) Clone() Cart {
	items := make([]CartItem, len(c.Items))
	for i, item := range c.Items {
		if item.Customizations != nil {
			cust := *item.Customizations
			item.Customizations = &cust
		}
		items[i] = item
	}
	c.Items = items
	return c
}

type Summary struct {
	TotalItems int             `json:"totalItems"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	ItemCount  int             `json:"itemCount"`
}

func Summarize(items []CartItem) Summary {
	s := Summary{TotalPrice: decimal.Zero, ItemCount: len(items)}
	for _, item := range items {
		s.TotalItems += item.Quantity
		s.TotalPrice = s.TotalPrice.Add(item.BasePrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return s
}

// View is what the storefront returns for a cart.
type View struct {
	CartID              string  `json:"cartId"`
	Cart                Cart    `json:"cart"`
	Summary             Summary `json:"summary"`
	HasSession          bool    `json:"hasSession"`
	DaysUntilExpiration int     `json:"daysUntilExpiration"`
	ExpiringSoon        bool    `json:"expiringSoon"`
}
