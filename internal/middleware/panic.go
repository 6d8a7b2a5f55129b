package middleware

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	inErrors "github.com/Alturino/makelocal/internal/errors"
	inHttp "github.com/Alturino/makelocal/internal/http"
	"github.com/Alturino/makelocal/internal/otel"
)

func RecoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, span := otel.Tracer.Start(r.Context(), "RecoverPanic")
		defer span.End()

		logger := zerolog.Ctx(c)
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			err, ok := recovered.(error)
			if !ok {
				err = fmt.Errorf("panic: %v", recovered)
			}
			logger.Error().Err(err).Stack().Msg("recovered from panic")
			inErrors.HandleError(err, span)
			inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]any{
				"status":     inHttp.StatusFailed,
				"statusCode": http.StatusInternalServerError,
				"message":    "Internal Server Error",
			})
		}()

		next.ServeHTTP(w, r.WithContext(c))
	})
}
