package errors

import (
	"errors"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrEmptyCartID          = errors.New("missing cart id")
	ErrInvalidCartID        = errors.New("cart id must be a valid uuid")
	ErrInvalidCoordinatorID = errors.New("invalid coordinatorId format, must be a valid uuid")
	ErrCartItemNotFound     = errors.New("cart item not found")
	ErrNoSessionToken       = errors.New("no session token available, please try adding items to cart again")
	ErrEmptyCheckout        = errors.New("cart is empty, please add items before checking out")
	ErrTooManyDraftItems    = errors.New("maximum 50 items per request, please reduce cart size")
	ErrCheckoutInProgress   = errors.New("checkout is already processing")
	ErrCheckoutNotIdle      = errors.New("checkout failed, retry before submitting again")
	ErrCheckoutNotRetryable = errors.New("checkout can only be retried from the error state")
	ErrProductNotFound      = errors.New("product not found")
	ErrNotAnImage           = errors.New("fetched resource is not an image")
	ErrPhotoHostNotAllowed  = errors.New("photo host is not a catalog image host")
)

func HandleError(err error, span trace.Span) {
	if err == nil {
		return
	}
	span.AddEvent(err.Error())
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
}
