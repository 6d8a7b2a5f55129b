package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	inErrors "github.com/Alturino/makelocal/internal/errors"
	"github.com/Alturino/makelocal/internal/log"
	"github.com/Alturino/makelocal/internal/otel"
)

const (
	HeaderContentType = "Content-Type"
	HeaderRequestID   = "X-Request-Id"
	HeaderValueJSON   = "application/json"

	StatusFailed  = "failed"
	StatusSuccess = "success"
)

func WriteJsonResponse(
	c context.Context,
	w http.ResponseWriter,
	header map[string]string,
	body map[string]any,
) {
	c, span := otel.Tracer.Start(c, "WriteJsonResponse")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "WriteJsonResponse").Logger()

	w.Header().Set(HeaderContentType, HeaderValueJSON)
	for k, v := range header {
		w.Header().Add(k, v)
	}

	if v, ok := body["statusCode"].(int); ok {
		w.WriteHeader(v)
	}

	if err := json.NewEncoder(w).Encode(body); err != nil {
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
	}
}

func WriteSuccess(c context.Context, w http.ResponseWriter, statusCode int, message string, data map[string]any) {
	WriteJsonResponse(c, w, map[string]string{}, map[string]any{
		"status":     StatusSuccess,
		"statusCode": statusCode,
		"message":    message,
		"data":       data,
	})
}

// WriteError answers with the status StatusFromError picks for err. Typed
// errors also expose their code.
func WriteError(c context.Context, w http.ResponseWriter, err error) {
	WriteErrorWithData(c, w, err, nil)
}

// WriteErrorWithData is WriteError with a data member, for failures that
// still carry state the client needs.
func WriteErrorWithData(c context.Context, w http.ResponseWriter, err error, data map[string]any) {
	body := map[string]any{
		"status":     StatusFailed,
		"statusCode": StatusFromError(err),
		"message":    Message(err),
	}
	if code := Code(err); code != "" {
		body["code"] = code
	}
	var validationErr *inErrors.ValidationError
	if errors.As(err, &validationErr) && validationErr.Field != "" {
		body["field"] = validationErr.Field
	}
	if data != nil {
		body["data"] = data
	}
	WriteJsonResponse(c, w, map[string]string{}, body)
}

func StatusFromError(err error) int {
	var (
		validationErr *inErrors.ValidationError
		storageErr    *inErrors.StorageError
		apiErr        *inErrors.APIError
	)
	switch {
	case errors.As(err, &validationErr):
		switch validationErr.Code {
		case inErrors.CodeCartFull, inErrors.CodeTooManyUniqueItems, inErrors.CodeCartTotalExceeded:
			return http.StatusConflict
		default:
			return http.StatusBadRequest
		}
	case errors.As(err, &storageErr):
		switch storageErr.Code {
		case inErrors.CodeQuotaExceeded:
			return http.StatusInsufficientStorage
		case inErrors.CodeNotAvailable:
			return http.StatusServiceUnavailable
		default:
			return http.StatusInternalServerError
		}
	case errors.As(err, &apiErr):
		switch apiErr.Code {
		case inErrors.CodeTimeout:
			return http.StatusGatewayTimeout
		case inErrors.CodeAborted:
			return http.StatusServiceUnavailable
		default:
			return http.StatusBadGateway
		}
	case errors.Is(err, inErrors.ErrEmptyCartID),
		errors.Is(err, inErrors.ErrInvalidCartID),
		errors.Is(err, inErrors.ErrInvalidCoordinatorID),
		errors.Is(err, inErrors.ErrEmptyCheckout),
		errors.Is(err, inErrors.ErrTooManyDraftItems),
		errors.Is(err, inErrors.ErrNoSessionToken):
		return http.StatusBadRequest
	case errors.Is(err, inErrors.ErrCartItemNotFound), errors.Is(err, inErrors.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, inErrors.ErrCheckoutInProgress),
		errors.Is(err, inErrors.ErrCheckoutNotIdle),
		errors.Is(err, inErrors.ErrCheckoutNotRetryable):
		return http.StatusConflict
	case errors.Is(err, inErrors.ErrNotAnImage):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, inErrors.ErrPhotoHostNotAllowed):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Code is the machine readable code of a typed error, or empty.
func Code(err error) string {
	var (
		validationErr *inErrors.ValidationError
		storageErr    *inErrors.StorageError
		apiErr        *inErrors.APIError
	)
	switch {
	case errors.As(err, &validationErr):
		return string(validationErr.Code)
	case errors.As(err, &storageErr):
		return string(storageErr.Code)
	case errors.As(err, &apiErr):
		return string(apiErr.Code)
	}
	return ""
}

// Message prefers the user facing message of typed errors over the wrapped
// chain.
func Message(err error) string {
	var (
		validationErr *inErrors.ValidationError
		apiErr        *inErrors.APIError
	)
	switch {
	case errors.As(err, &validationErr):
		return validationErr.Error()
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	}
	return err.Error()
}
