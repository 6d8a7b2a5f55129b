package response

import (
	"fmt"
	"time"
)

type DraftOrder struct {
	DraftOrderID string `json:"draftOrderId"`
	IsNewDraft   bool   `json:"isNewDraft"`
	ProductID    string `json:"productId"`
}

type DraftError struct {
	ProductID string `json:"productId"`
	Error     string `json:"error"`
}

type BatchDraftOrder struct {
	Results     []DraftOrder `json:"results"`
	Errors      []DraftError `json:"errors,omitempty"`
	RedirectURL string       `json:"redirectUrl"`
}

func (b BatchDraftOrder) DraftOrderIDs() []string {
	ids := make([]string, len(b.Results))
	for i, r := range b.Results {
		ids[i] = r.DraftOrderID
	}
	return ids
}

type StatusType string

const (
	StatusDraft            StatusType = "draft"
	StatusDesignRequest    StatusType = "design_request"
	StatusPending          StatusType = "pending"
	StatusOffered          StatusType = "offered"
	StatusMatched          StatusType = "matched"
	StatusInProduction     StatusType = "in_production"
	StatusShipped          StatusType = "shipped"
	StatusDelivered        StatusType = "delivered"
	StatusCancelled        StatusType = "cancelled"
	StatusReviewing        StatusType = "reviewing"
	StatusChangesSuggested StatusType = "changes_suggested"
	StatusCompleted        StatusType = "completed"
	StatusPendingPayment   StatusType = "pending_payment"
)

var statusLabels = map[StatusType]string{
	StatusDraft:            "Draft",
	StatusDesignRequest:    "Design Request",
	StatusPending:          "Pending",
	StatusOffered:          "Offered",
	StatusMatched:          "Matched",
	StatusInProduction:     "In Production",
	StatusShipped:          "Shipped",
	StatusDelivered:        "Delivered",
	StatusCancelled:        "Cancelled",
	StatusReviewing:        "Reviewing",
	StatusChangesSuggested: "Changes Suggested",
	StatusCompleted:        "Completed",
	StatusPendingPayment:   "Pending Payment",
}

// Label is the display name of s, or s itself when unknown.
func (s StatusType) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

type OrderProduct struct {
	Title string `json:"title"`
}

type OrderStatus struct {
	ID        string        `json:"id"`
	Status    StatusType    `json:"status"`
	Quantity  int           `json:"quantity"`
	Products  *OrderProduct `json:"products,omitempty"`
	CreatedAt string        `json:"created_at,omitempty"`
}

// Summary renders one order as "Title (×2) order: Shipped".
func (o OrderStatus) Summary() string {
	title := "Product"
	if o.Products != nil && o.Products.Title != "" {
		title = o.Products.Title
	}
	quantity := ""
	if o.Quantity > 1 {
		quantity = fmt.Sprintf(" (×%d)", o.Quantity)
	}
	return title + quantity + " order: " + o.Status.Label()
}

type OrderStatuses struct {
	Orders    []OrderStatus `json:"orders"`
	FetchedAt time.Time     `json:"fetchedAt"`
}
