package errors

import (
	"errors"
	"fmt"
)

type APICode string

const (
	CodeTimeout         APICode = "TIMEOUT"
	CodeAborted         APICode = "ABORTED"
	CodeNetworkError    APICode = "NETWORK_ERROR"
	CodeAPIError        APICode = "API_ERROR"
	CodeUnknownError    APICode = "UNKNOWN_ERROR"
	CodeInvalidResponse APICode = "INVALID_RESPONSE"
)

// APIError wraps every failure talking to the order management API.
type APIError struct {
	Code       APICode        `json:"code"`
	Message    string         `json:"message"`
	StatusCode int            `json:"statusCode,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status=%d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

func (e *APIError) Is(target error) bool {
	var t *APIError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrTimeout         = &APIError{Code: CodeTimeout}
	ErrAborted         = &APIError{Code: CodeAborted}
	ErrNetwork         = &APIError{Code: CodeNetworkError}
	ErrAPI             = &APIError{Code: CodeAPIError}
	ErrInvalidResponse = &APIError{Code: CodeInvalidResponse}
)
