// Package checkout turns a cart into draft orders on the order management
// API and tracks the checkout flow of one cart.
package checkout

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	cartResponse "github.com/Alturino/makelocal/cart/pkg/response"
	"github.com/Alturino/makelocal/internal/api"
	inErrors "github.com/Alturino/makelocal/internal/errors"
	"github.com/Alturino/makelocal/internal/log"
	"github.com/Alturino/makelocal/internal/otel"
	"github.com/Alturino/makelocal/internal/session"
	"github.com/Alturino/makelocal/order/pkg/request"
	"github.com/Alturino/makelocal/order/pkg/response"
)

const (
	MaxDraftItems = 50

	endpointOrderDraft    = "/product-order-draft"
	endpointOrderStatuses = "/product-order-statuses"
)

type APIClient interface {
	Do(c context.Context, method, endpoint string, body, out any, opts ...api.RequestOption) error
}

type TokenSource interface {
	EnsureValid(c context.Context) (string, error)
}

// AllDraftsFailedError is returned when the API rejected every line of a
// batch.
type AllDraftsFailedError struct {
	Errors []response.DraftError
}

func (e *AllDraftsFailedError) Error() string {
	return "Failed to create draft orders: " + e.Errors[0].Error
}

// CustomizationsToProductParameters maps the set fields of c. Empty fields
// are left out rather than sent blank.
func CustomizationsToProductParameters(c *cartResponse.Customizations) []request.ProductParameter {
	params := []request.ProductParameter{}
	if c == nil {
		return params
	}
	if c.Text != "" {
		params = append(params, request.ProductParameter{
			Name:  "text",
			Type:  request.ParameterTypeText,
			Value: c.Text,
		})
	}
	if c.ColorID != "" {
		params = append(params, request.ProductParameter{
			Name:  "color",
			Type:  request.ParameterTypeColor,
			Value: c.ColorID,
		})
	}
	return params
}

func CartItemToCreateDraftRequest(item cartResponse.CartItem) request.CreateDraft {
	return request.CreateDraft{
		ProductID:         item.ProductID,
		Quantity:          item.Quantity,
		ProductParameters: CustomizationsToProductParameters(item.Customizations),
		Urgency:           request.DefaultUrgency,
		Currency:          request.DefaultCurrency,
	}
}

func CartToCreateDraftBatchRequest(cart cartResponse.Cart) request.CreateDraftBatch {
	items := make([]request.CreateDraft, len(cart.Items))
	for i, item := range cart.Items {
		items[i] = CartItemToCreateDraftRequest(item)
	}
	return request.CreateDraftBatch{Items: items}
}

func ValidateCartForCheckout(cart cartResponse.Cart) error {
	if len(cart.Items) == 0 {
		return inErrors.ErrEmptyCheckout
	}
	for _, item := range cart.Items {
		if item.Customizations == nil {
			return inErrors.NewValidationError(
				inErrors.CodeMissingCustomization, "customizations",
				"Item %q is missing customizations.", item.ProductName,
			)
		}
	}
	return nil
}

type Drafter struct {
	api    APIClient
	tokens TokenSource
}

func NewDrafter(client APIClient, tokens TokenSource) *Drafter {
	return &Drafter{api: client, tokens: tokens}
}

// CreateOrderDraft submits every cart line as one batch. A response where
// only some lines failed is returned without error; the caller decides what
// to show for response.Errors.
func (d *Drafter) CreateOrderDraft(
	c context.Context,
	cart cartResponse.Cart,
) (response.BatchDraftOrder, error) {
	c, span := otel.Tracer.Start(c, "Drafter CreateOrderDraft")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Drafter CreateOrderDraft").
		Int(log.KeyCartItemsCount, len(cart.Items)).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "resolving session token").Logger()
	token := cart.SessionToken
	if token == "" && d.tokens != nil {
		var err error
		token, err = d.tokens.EnsureValid(c)
		if err != nil {
			logger.Warn().Err(err).Msg("failed resolving session token")
			token = ""
		}
	}
	if token == "" {
		err := inErrors.ErrNoSessionToken
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.BatchDraftOrder{}, err
	}
	logger = logger.With().Str(log.KeyTokenFingerprint, session.Fingerprint(token)).Logger()

	payload := CartToCreateDraftBatchRequest(cart)
	if len(payload.Items) == 0 {
		inErrors.HandleError(inErrors.ErrEmptyCheckout, span)
		return response.BatchDraftOrder{}, inErrors.ErrEmptyCheckout
	}
	if len(payload.Items) > MaxDraftItems {
		inErrors.HandleError(inErrors.ErrTooManyDraftItems, span)
		return response.BatchDraftOrder{}, inErrors.ErrTooManyDraftItems
	}

	logger = logger.With().Str(log.KeyProcess, "submitting draft batch").Logger()
	logger.Info().Msg("submitting draft batch")
	resp := response.BatchDraftOrder{}
	err := d.api.Do(c, http.MethodPost, endpointOrderDraft, payload, &resp, api.WithBearerToken(token))
	if err != nil {
		err = fmt.Errorf("failed creating order draft with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.BatchDraftOrder{}, err
	}

	if len(resp.Errors) > 0 {
		logger.Warn().Any(log.KeyPartialFailures, resp.Errors).Msg("some items failed to create draft orders")
		if len(resp.Results) == 0 {
			err := &AllDraftsFailedError{Errors: resp.Errors}
			inErrors.HandleError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return response.BatchDraftOrder{}, err
		}
	}
	logger.Info().
		Strs(log.KeyDraftOrderIDs, resp.DraftOrderIDs()).
		Str(log.KeyRedirectURL, resp.RedirectURL).
		Msg("created order drafts")
	return resp, nil
}
