package errors

import (
	"errors"
	"fmt"
)

type ValidationCode string

const (
	CodeQuantityTooLow       ValidationCode = "QUANTITY_TOO_LOW"
	CodeQuantityTooHigh      ValidationCode = "QUANTITY_TOO_HIGH"
	CodeCartFull             ValidationCode = "CART_FULL"
	CodeTooManyUniqueItems   ValidationCode = "TOO_MANY_UNIQUE_ITEMS"
	CodeCartTotalExceeded    ValidationCode = "CART_TOTAL_EXCEEDED"
	CodeMissingProductID     ValidationCode = "MISSING_PRODUCT_ID"
	CodeMissingProductName   ValidationCode = "MISSING_PRODUCT_NAME"
	CodeInvalidPrice         ValidationCode = "INVALID_PRICE"
	CodeMissingCustomization ValidationCode = "MISSING_CUSTOMIZATIONS"
	CodeInvalidCustomization ValidationCode = "INVALID_CUSTOMIZATION"
)

// ValidationError is returned by the pure cart checks. Two validation errors
// match under errors.Is when their codes are equal, so callers can compare
// against the Err* values below regardless of message or field.
type ValidationError struct {
	Code    ValidationCode `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	var t *ValidationError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func NewValidationError(code ValidationCode, field string, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrQuantityTooLow     = &ValidationError{Code: CodeQuantityTooLow}
	ErrQuantityTooHigh    = &ValidationError{Code: CodeQuantityTooHigh}
	ErrCartFull           = &ValidationError{Code: CodeCartFull}
	ErrTooManyUniqueItems = &ValidationError{Code: CodeTooManyUniqueItems}
	ErrCartTotalExceeded  = &ValidationError{Code: CodeCartTotalExceeded}

	ErrMissingCustomization = &ValidationError{Code: CodeMissingCustomization}
	ErrInvalidCustomization = &ValidationError{Code: CodeInvalidCustomization}
)
