package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/Alturino/makelocal/cart/internal/service"
	"github.com/Alturino/makelocal/cart/pkg/request"
	commonValidate "github.com/Alturino/makelocal/internal/common/validate"
	inErrors "github.com/Alturino/makelocal/internal/errors"
	inHttp "github.com/Alturino/makelocal/internal/http"
	"github.com/Alturino/makelocal/internal/log"
	"github.com/Alturino/makelocal/internal/otel"
	productResponse "github.com/Alturino/makelocal/product/pkg/response"
	productValidation "github.com/Alturino/makelocal/product/pkg/validation"
)

const (
	pathCartID = "cartId"
	pathItemID = "itemId"
)

// ProductLookup resolves products for customization checks.
type ProductLookup interface {
	ProductByID(c context.Context, id string) (productResponse.Product, error)
}

type CartController struct {
	registry *service.Registry
	products ProductLookup
	validate *validator.Validate
}

// AttachCartController mounts the cart routes. products may be nil, in which
// case customizations are stored unchecked.
func AttachCartController(router *mux.Router, registry *service.Registry, products ProductLookup) {
	controller := CartController{registry: registry, products: products, validate: commonValidate.New()}

	carts := router.PathPrefix("/carts").Subrouter()
	carts.HandleFunc("", controller.CreateCart).Methods(http.MethodPost)
	carts.HandleFunc("/{cartId}", controller.FindCart).Methods(http.MethodGet)
	carts.HandleFunc("/{cartId}", controller.ClearCart).Methods(http.MethodDelete)
	carts.HandleFunc("/{cartId}/items", controller.AddItem).Methods(http.MethodPost)
	carts.HandleFunc("/{cartId}/items/{itemId}", controller.UpdateQuantity).Methods(http.MethodPatch)
	carts.HandleFunc("/{cartId}/items/{itemId}", controller.RemoveItem).Methods(http.MethodDelete)
	carts.HandleFunc("/{cartId}/extend", controller.ExtendCart).Methods(http.MethodPost)
}

func fail(c context.Context, w http.ResponseWriter, span trace.Span, logger zerolog.Logger, err error) {
	inErrors.HandleError(err, span)
	logger.Error().Err(err).Msg(err.Error())
	inHttp.WriteError(c, w, err)
}

func badRequest(c context.Context, w http.ResponseWriter, span trace.Span, logger zerolog.Logger, err error) {
	inErrors.HandleError(err, span)
	logger.Error().Err(err).Msg(err.Error())
	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]any{
		"status":     inHttp.StatusFailed,
		"statusCode": http.StatusBadRequest,
		"message":    err.Error(),
	})
}

// entry resolves the cart named by the path, logging under tag.
func (t CartController) entry(r *http.Request, tag string) (context.Context, trace.Span, zerolog.Logger, *service.Entry, error) {
	c, span := otel.Tracer.Start(r.Context(), tag)
	cartID := mux.Vars(r)[pathCartID]
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, tag).
		Str(log.KeyCartID, cartID).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "resolving cart").Logger()
	entry, err := t.registry.Get(logger.WithContext(c), cartID)
	if err != nil {
		err = fmt.Errorf("failed resolving cart with error=%w", err)
		return c, span, logger, nil, err
	}
	return logger.WithContext(c), span, logger, entry, nil
}

func (t CartController) CreateCart(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CartController CreateCart")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "CartController CreateCart").Logger()

	logger = logger.With().Str(log.KeyProcess, "creating cart").Logger()
	logger.Info().Msg("creating cart")
	entry, err := t.registry.Create(logger.WithContext(c))
	if err != nil {
		fail(c, w, span, logger, fmt.Errorf("failed creating cart with error=%w", err))
		return
	}
	logger.Info().Str(log.KeyCartID, entry.Store.CartID()).Msg("created cart")

	inHttp.WriteSuccess(c, w, http.StatusCreated, "created cart", map[string]any{
		"cart": entry.Store.Snapshot(),
	})
}

func (t CartController) FindCart(w http.ResponseWriter, r *http.Request) {
	c, span, logger, entry, err := t.entry(r, "CartController FindCart")
	defer span.End()
	if err != nil {
		fail(c, w, span, logger, err)
		return
	}

	inHttp.WriteSuccess(c, w, http.StatusOK, "found cart", map[string]any{
		"cart":     entry.Store.Snapshot(),
		"checkout": entry.Checkout.Status(),
	})
}

func (t CartController) AddItem(w http.ResponseWriter, r *http.Request) {
	c, span, logger, entry, err := t.entry(r, "CartController AddItem")
	defer span.End()
	if err != nil {
		fail(c, w, span, logger, err)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "decoding requestbody").Logger()
	logger.Debug().Msg("decoding requestbody")
	reqBody := request.AddItem{}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		badRequest(c, w, span, logger, fmt.Errorf("failed decoding request body with error=%w", err))
		return
	}

	logger = logger.With().Str(log.KeyProcess, "validating requestbody").Logger()
	if err := t.validate.StructCtx(c, reqBody); err != nil {
		badRequest(c, w, span, logger, fmt.Errorf("failed validating request body with error=%w", err))
		return
	}
	logger = logger.With().Str(log.KeyProductID, reqBody.ProductID).Logger()

	if t.products != nil {
		logger = logger.With().Str(log.KeyProcess, "validating customizations").Logger()
		product, err := t.products.ProductByID(c, reqBody.ProductID)
		switch {
		case err == nil:
			result := productValidation.ValidateProductConfiguration(product, reqBody.Customizations)
			if !result.Valid {
				err := result.Errors[0]
				inErrors.HandleError(err, span)
				logger.Info().Err(err).Int("invalidFields", len(result.Errors)).Msg("rejected customizations")
				inHttp.WriteErrorWithData(c, w, err, map[string]any{"errors": result.Errors})
				return
			}
		case errors.Is(err, inErrors.ErrProductNotFound):
			logger.Debug().Msg("product not in catalog, storing customizations unchecked")
		default:
			logger.Warn().Err(err).Msg("failed loading catalog, storing customizations unchecked")
		}
	}

	logger = logger.With().Str(log.KeyProcess, "adding item").Logger()
	item, err := entry.Store.AddItem(c, reqBody)
	if err != nil {
		fail(c, w, span, logger, fmt.Errorf("failed adding item with error=%w", err))
		return
	}

	inHttp.WriteSuccess(c, w, http.StatusCreated, "added item", map[string]any{
		"item":    item,
		"summary": entry.Store.Summary(),
	})
}

func (t CartController) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	c, span, logger, entry, err := t.entry(r, "CartController UpdateQuantity")
	defer span.End()
	if err != nil {
		fail(c, w, span, logger, err)
		return
	}
	itemID := mux.Vars(r)[pathItemID]
	logger = logger.With().Str(log.KeyCartItemID, itemID).Logger()

	logger = logger.With().Str(log.KeyProcess, "decoding requestbody").Logger()
	reqBody := request.UpdateQuantity{}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		badRequest(c, w, span, logger, fmt.Errorf("failed decoding request body with error=%w", err))
		return
	}

	logger = logger.With().Str(log.KeyProcess, "updating quantity").Logger()
	if err := entry.Store.UpdateQuantity(c, itemID, reqBody.Quantity); err != nil {
		fail(c, w, span, logger, fmt.Errorf("failed updating quantity with error=%w", err))
		return
	}

	inHttp.WriteSuccess(c, w, http.StatusOK, "updated quantity", map[string]any{
		"cart": entry.Store.Snapshot(),
	})
}

func (t CartController) RemoveItem(w http.ResponseWriter, r *http.Request) {
	c, span, logger, entry, err := t.entry(r, "CartController RemoveItem")
	defer span.End()
	if err != nil {
		fail(c, w, span, logger, err)
		return
	}
	itemID := mux.Vars(r)[pathItemID]
	logger = logger.With().Str(log.KeyCartItemID, itemID).Str(log.KeyProcess, "removing item").Logger()

	if err := entry.Store.RemoveItem(c, itemID); err != nil {
		fail(c, w, span, logger, fmt.Errorf("failed removing item with error=%w", err))
		return
	}

	inHttp.WriteSuccess(c, w, http.StatusOK, "removed item", map[string]any{
		"cart": entry.Store.Snapshot(),
	})
}

func (t CartController) ClearCart(w http.ResponseWriter, r *http.Request) {
	c, span, logger, entry, err := t.entry(r, "CartController ClearCart")
	defer span.End()
	if err != nil {
		fail(c, w, span, logger, err)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "clearing cart").Logger()
	if err := entry.Store.Clear(c); err != nil {
		fail(c, w, span, logger, fmt.Errorf("failed clearing cart with error=%w", err))
		return
	}

	inHttp.WriteSuccess(c, w, http.StatusOK, "cleared cart", map[string]any{
		"cart": entry.Store.Snapshot(),
	})
}

func (t CartController) ExtendCart(w http.ResponseWriter, r *http.Request) {
	c, span, logger, entry, err := t.entry(r, "CartController ExtendCart")
	defer span.End()
	if err != nil {
		fail(c, w, span, logger, err)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "extending cart").Logger()
	if err := entry.Store.Extend(c); err != nil {
		fail(c, w, span, logger, fmt.Errorf("failed extending cart with error=%w", err))
		return
	}

	inHttp.WriteSuccess(c, w, http.StatusOK, "extended cart", map[string]any{
		"cart": entry.Store.Snapshot(),
	})
}
