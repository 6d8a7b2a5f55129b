package controller

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/Alturino/makelocal/cart/internal/service"
	inErrors "github.com/Alturino/makelocal/internal/errors"
	inHttp "github.com/Alturino/makelocal/internal/http"
	"github.com/Alturino/makelocal/internal/log"
	"github.com/Alturino/makelocal/order/pkg/checkout"
	"github.com/Alturino/makelocal/order/pkg/history"
)

const queryLimit = "limit"

type AttemptLister interface {
	ListByCart(c context.Context, cartID string, limit int) ([]checkout.Attempt, error)
}

type CheckoutController struct {
	carts   CartController
	history AttemptLister
}

// AttachCheckoutController mounts checkout and order routes. The history
// route is only mounted when attempts is not nil.
func AttachCheckoutController(router *mux.Router, registry *service.Registry, attempts AttemptLister) {
	controller := CheckoutController{carts: CartController{registry: registry}, history: attempts}

	carts := router.PathPrefix("/carts/{cartId}").Subrouter()
	carts.HandleFunc("/checkout", controller.Submit).Methods(http.MethodPost)
	carts.HandleFunc("/checkout", controller.Status).Methods(http.MethodGet)
	carts.HandleFunc("/checkout/retry", controller.Retry).Methods(http.MethodPost)
	if attempts != nil {
		carts.HandleFunc("/checkout/history", controller.History).Methods(http.MethodGet)
	}
	carts.HandleFunc("/orders", controller.OrderStatuses).Methods(http.MethodGet)
}

func (t CheckoutController) Submit(w http.ResponseWriter, r *http.Request) {
	c, span, logger, entry, err := t.carts.entry(r, "CheckoutController Submit")
	defer span.End()
	if err != nil {
		fail(c, w, span, logger, err)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "submitting checkout").Logger()
	logger.Info().Msg("submitting checkout")
	status, err := entry.Checkout.Submit(c)
	if err != nil {
		err = fmt.Errorf("failed checkout with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Str(log.KeyCheckoutState, string(status.State)).Msg(err.Error())
		inHttp.WriteErrorWithData(c, w, err, map[string]any{"checkout": status})
		return
	}
	logger.Info().Str(log.KeyCheckoutState, string(status.State)).Msg("checkout finished")

	inHttp.WriteSuccess(c, w, http.StatusOK, "checked out", map[string]any{
		"checkout": status,
		"cart":     entry.Store.Snapshot(),
	})
}

func (t CheckoutController) Status(w http.ResponseWriter, r *http.Request) {
	c, span, logger, entry, err := t.carts.entry(r, "CheckoutController Status")
	defer span.End()
	if err != nil {
		fail(c, w, span, logger, err)
		return
	}

	inHttp.WriteSuccess(c, w, http.StatusOK, "found checkout status", map[string]any{
		"checkout": entry.Checkout.Status(),
	})
}

func (t CheckoutController) Retry(w http.ResponseWriter, r *http.Request) {
	c, span, logger, entry, err := t.carts.entry(r, "CheckoutController Retry")
	defer span.End()
	if err != nil {
		fail(c, w, span, logger, err)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "resetting checkout").Logger()
	if err := entry.Checkout.Retry(); err != nil {
		fail(c, w, span, logger, fmt.Errorf("failed resetting checkout with error=%w", err))
		return
	}

	inHttp.WriteSuccess(c, w, http.StatusOK, "checkout reset", map[string]any{
		"checkout": entry.Checkout.Status(),
	})
}

func (t CheckoutController) History(w http.ResponseWriter, r *http.Request) {
	c, span, logger, entry, err := t.carts.entry(r, "CheckoutController History")
	defer span.End()
	if err != nil {
		fail(c, w, span, logger, err)
		return
	}

	limit := history.DefaultListLimit
	if raw := r.URL.Query().Get(queryLimit); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			badRequest(c, w, span, logger, fmt.Errorf("failed parsing limit=%q, must be a positive integer", raw))
			return
		}
		limit = parsed
	}

	logger = logger.With().Str(log.KeyProcess, "listing checkout attempts").Int("limit", limit).Logger()
	attempts, err := t.history.ListByCart(c, entry.Store.CartID(), limit)
	if err != nil {
		fail(c, w, span, logger, fmt.Errorf("failed listing checkout attempts with error=%w", err))
		return
	}

	inHttp.WriteSuccess(c, w, http.StatusOK, "found checkout history", map[string]any{
		"attempts": attempts,
	})
}

func (t CheckoutController) OrderStatuses(w http.ResponseWriter, r *http.Request) {
	c, span, logger, entry, err := t.carts.entry(r, "CheckoutController OrderStatuses")
	defer span.End()
	if err != nil {
		fail(c, w, span, logger, err)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "fetching order statuses").Logger()
	statuses, err := entry.Orders.FetchOrderStatuses(c)
	if err != nil {
		fail(c, w, span, logger, fmt.Errorf("failed fetching order statuses with error=%w", err))
		return
	}

	inHttp.WriteSuccess(c, w, http.StatusOK, "found order statuses", map[string]any{
		"orders":    statuses.Orders,
		"fetchedAt": statuses.FetchedAt,
	})
}
