package response

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Alturino/makelocal/order/pkg/request"
)

type ColorOption struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Hex       string `json:"hex"`
	Available *bool  `json:"available,omitempty"`
}

// IsAvailable treats an unset availability as in stock.
func (o ColorOption) IsAvailable() bool {
	return o.Available == nil || *o.Available
}

type TextInputConfig struct {
	Label        string `json:"label"`
	Placeholder  string `json:"placeholder,omitempty"`
	Required     bool   `json:"required"`
	MinLength    int    `json:"minLength"`
	MaxLength    int    `json:"maxLength"`
	Validation   string `json:"validation,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

type ColorSelectConfig struct {
	Label    string        `json:"label"`
	Required bool          `json:"required"`
	Options  []ColorOption `json:"options"`
}

type Personalization struct {
	TextInput   *TextInputConfig   `json:"textInput,omitempty"`
	ColorSelect *ColorSelectConfig `json:"colorSelect,omitempty"`
}

type Product struct {
	ID                 string          `json:"id"`
	Slug               string          `json:"slug"`
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	BasePrice          decimal.Decimal `json:"basePrice"`
	EstimatedPrintTime string          `json:"estimatedPrintTime"`
	Material           string          `json:"material"`
	Images             []string        `json:"images"`
	Personalization    Personalization `json:"personalization"`
}

// CoordinatorProduct is a product as listed by the order management API.
type CoordinatorProduct struct {
	ID                   string                     `json:"id"`
	Slug                 string                     `json:"slug"`
	Title                string                     `json:"title"`
	Description          string                     `json:"description"`
	Price                decimal.Decimal            `json:"price"`
	FeaturedImage        string                     `json:"featured_image"`
	Photos               []string                   `json:"photos"`
	ChangeableParameters []request.ProductParameter `json:"changeable_parameters"`
}

type Coordinator struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type ProductsByCoordinator struct {
	Products    []CoordinatorProduct `json:"products"`
	TotalCount  int                  `json:"total_count"`
	Coordinator *Coordinator         `json:"coordinator,omitempty"`
}

type Catalog struct {
	CoordinatorID string    `json:"coordinatorId"`
	Products      []Product `json:"products"`
	FetchedAt     time.Time `json:"fetchedAt"`
}
