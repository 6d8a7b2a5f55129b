// Package repository holds the stored shape of a cart. Timestamps are unix
// milliseconds so records written by browser clients of the same key space
// stay readable.
package repository

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Alturino/makelocal/cart/pkg/response"
)

type CartItemRecord struct {
	ID             string                  `json:"id"`
	ProductID      string                  `json:"productId"`
	ProductSlug    string                  `json:"productSlug"`
	ProductName    string                  `json:"productName"`
	BasePrice      decimal.Decimal         `json:"basePrice"`
	Customizations response.Customizations `json:"customizations"`
	Quantity       int                     `json:"quantity"`
	AddedAt        int64                   `json:"addedAt"`
}

type CartRecord struct {
	Items        []CartItemRecord `json:"items"`
	SessionToken string           `json:"sessionToken,omitempty"`
	CreatedAt    int64            `json:"createdAt"`
	UpdatedAt    int64            `json:"updatedAt"`
	ExpiresAt    int64            `json:"expiresAt"`
}

func NewCartRecord(cart response.Cart) CartRecord {
	items := make([]CartItemRecord, len(cart.Items))
	for i, item := range cart.Items {
		rec := CartItemRecord{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductSlug: item.ProductSlug,
			ProductName: item.ProductName,
			BasePrice:   item.BasePrice,
			Quantity:    item.Quantity,
			AddedAt:     item.AddedAt.UnixMilli(),
		}
		if item.Customizations != nil {
			rec.Customizations = *item.Customizations
		}
		items[i] = rec
	}
	return CartRecord{
		Items:        items,
		SessionToken: cart.SessionToken,
		CreatedAt:    cart.CreatedAt.UnixMilli(),
		UpdatedAt:    cart.UpdatedAt.UnixMilli(),
		ExpiresAt:    cart.ExpiresAt.UnixMilli(),
	}
}

func (r CartRecord) Response() response.Cart {
	items := make([]response.CartItem, len(r.Items))
	for i, rec := range r.Items {
		cust := rec.Customizations
		items[i] = response.CartItem{
			ID:             rec.ID,
			ProductID:      rec.ProductID,
			ProductSlug:    rec.ProductSlug,
			ProductName:    rec.ProductName,
			BasePrice:      rec.BasePrice,
			Customizations: &cust,
			Quantity:       rec.Quantity,
			AddedAt:        time.UnixMilli(rec.AddedAt),
		}
	}
	return response.Cart{
		Items:        items,
		SessionToken: r.SessionToken,
		CreatedAt:    time.UnixMilli(r.CreatedAt),
		UpdatedAt:    time.UnixMilli(r.UpdatedAt),
		ExpiresAt:    time.UnixMilli(r.ExpiresAt),
	}
}
