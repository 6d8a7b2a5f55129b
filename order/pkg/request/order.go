package request

const (
	DefaultUrgency  = "standard"
	DefaultCurrency = "EUR"

	ParameterTypeText  = "text"
	ParameterTypeColor = "color"
)

type ProductParameter struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Value        string   `json:"value"`
	DefaultValue string   `json:"default_value,omitempty"`
	IsRequired   bool     `json:"is_required"`
	Options      []string `json:"options,omitempty"`
	Placeholder  string   `json:"placeholder,omitempty"`
	Description  string   `json:"description,omitempty"`
}

type CreateDraft struct {
	ProductID         string             `json:"productId"                   validate:"required"`
	Quantity          int                `json:"quantity"                    validate:"gt=0"`
	Urgency           string             `json:"urgency,omitempty"`
	Currency          string             `json:"currency,omitempty"`
	Notes             string             `json:"notes,omitempty"`
	ProductParameters []ProductParameter `json:"productParameters"`
}

type CreateDraftBatch struct {
	Items []CreateDraft `json:"items" validate:"required,min=1,max=50,dive"`
}
