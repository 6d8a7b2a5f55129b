package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	cartResponse "github.com/Alturino/makelocal/cart/pkg/response"
	inErrors "github.com/Alturino/makelocal/internal/errors"
	"github.com/Alturino/makelocal/internal/log"
	"github.com/Alturino/makelocal/internal/metrics"
	"github.com/Alturino/makelocal/internal/otel"
	"github.com/Alturino/makelocal/order/pkg/response"
)

type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StateSuccess    State = "success"
	StateError      State = "error"
)

const defaultErrorMessage = "An unexpected error occurred during checkout"

type CartSource interface {
	Cart() cartResponse.Cart
	ClearSubmitted(c context.Context, submitted cartResponse.Cart) error
}

// Attempt is one finished checkout, as kept in the history.
type Attempt struct {
	ID              uuid.UUID             `json:"id"`
	CartID          string                `json:"cartId"`
	State           State                 `json:"state"`
	ItemCount       int                   `json:"itemCount"`
	TotalItems      int                   `json:"totalItems"`
	TotalPrice      decimal.Decimal       `json:"totalPrice"`
	DraftOrderIDs   []string              `json:"draftOrderIds"`
	PartialFailures []response.DraftError `json:"partialFailures"`
	RedirectURL     string                `json:"redirectUrl,omitempty"`
	Error           string                `json:"error,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
}

type Recorder interface {
	RecordAttempt(c context.Context, attempt Attempt) error
}

type Publisher interface {
	PublishCheckedOut(c context.Context, attempt Attempt) error
}

type Status struct {
	State           State                 `json:"state"`
	Error           string                `json:"error,omitempty"`
	RedirectURL     string                `json:"redirectUrl,omitempty"`
	DraftOrderIDs   []string              `json:"draftOrderIds,omitempty"`
	PartialFailures []response.DraftError `json:"partialFailures,omitempty"`
	UpdatedAt       time.Time             `json:"updatedAt"`
}

// Flow is the checkout state machine of one cart:
// idle -> processing -> success | error, and error -> idle on Retry.
type Flow struct {
	cartID    string
	cart      CartSource
	drafter   *Drafter
	recorder  Recorder
	publisher Publisher
	metrics   *metrics.Metrics
	now       func() time.Time

	mu     sync.Mutex
	status Status
}

type FlowOption func(*Flow)

func WithRecorder(r Recorder) FlowOption {
	return func(f *Flow) { f.recorder = r }
}

func WithPublisher(p Publisher) FlowOption {
	return func(f *Flow) { f.publisher = p }
}

func WithFlowMetrics(m *metrics.Metrics) FlowOption {
	return func(f *Flow) { f.metrics = m }
}

func WithFlowClock(now func() time.Time) FlowOption {
	return func(f *Flow) { f.now = now }
}

func NewFlow(cartID string, cart CartSource, drafter *Drafter, opts ...FlowOption) *Flow {
	f := &Flow{
		cartID:  cartID,
		cart:    cart,
		drafter: drafter,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.status = Status{State: StateIdle, UpdatedAt: f.now()}
	return f
}

func (f *Flow) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Submit runs one checkout. A checkout that finished successfully may be
// followed by a new one; a failed one must be retried first.
func (f *Flow) Submit(c context.Context) (Status, error) {
	c, span := otel.Tracer.Start(c, "Flow Submit")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Flow Submit").
		Str(log.KeyCartID, f.cartID).
		Logger()

	f.mu.Lock()
	switch f.status.State {
	case StateProcessing:
		f.mu.Unlock()
		inErrors.HandleError(inErrors.ErrCheckoutInProgress, span)
		return f.Status(), inErrors.ErrCheckoutInProgress
	case StateError:
		f.mu.Unlock()
		inErrors.HandleError(inErrors.ErrCheckoutNotIdle, span)
		return f.Status(), inErrors.ErrCheckoutNotIdle
	}
	f.status = Status{State: StateProcessing, UpdatedAt: f.now()}
	f.mu.Unlock()
	logger = logger.With().Str(log.KeyCheckoutState, string(StateProcessing)).Logger()
	logger.Info().Msg("checkout processing")

	cart := f.cart.Cart()
	summary := cartResponse.Summarize(cart.Items)
	attempt := Attempt{
		ID:         uuid.New(),
		CartID:     f.cartID,
		ItemCount:  summary.ItemCount,
		TotalItems: summary.TotalItems,
		TotalPrice: summary.TotalPrice,
		CreatedAt:  f.now(),
	}

	resp, err := f.draft(c, cart)
	if err != nil {
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())

		attempt.State = StateError
		attempt.Error = errorMessage(err)
		f.finish(c, Status{State: StateError, Error: attempt.Error, UpdatedAt: f.now()}, attempt)
		return f.Status(), err
	}

	logger = logger.With().Str(log.KeyProcess, "clearing submitted items").Logger()
	if err := f.cart.ClearSubmitted(c, cart); err != nil {
		logger.Warn().Err(err).Msg("failed clearing cart after checkout")
	}

	attempt.State = StateSuccess
	attempt.DraftOrderIDs = resp.DraftOrderIDs()
	attempt.PartialFailures = resp.Errors
	attempt.RedirectURL = resp.RedirectURL
	f.finish(c, Status{
		State:           StateSuccess,
		RedirectURL:     resp.RedirectURL,
		DraftOrderIDs:   attempt.DraftOrderIDs,
		PartialFailures: resp.Errors,
		UpdatedAt:       f.now(),
	}, attempt)

	logger.Info().
		Str(log.KeyCheckoutState, string(StateSuccess)).
		Int(log.KeyPartialFailures, len(resp.Errors)).
		Msg("checkout succeeded")
	return f.Status(), nil
}

func (f *Flow) draft(c context.Context, cart cartResponse.Cart) (response.BatchDraftOrder, error) {
	if err := ValidateCartForCheckout(cart); err != nil {
		return response.BatchDraftOrder{}, err
	}
	return f.drafter.CreateOrderDraft(c, cart)
}

// finish publishes the final status, then hands the attempt to the optional
// recorder and publisher. Their failures never change the outcome.
func (f *Flow) finish(c context.Context, status Status, attempt Attempt) {
	f.mu.Lock()
	f.status = status
	f.mu.Unlock()
	f.metrics.ObserveCheckout(string(status.State))

	logger := zerolog.Ctx(c).With().Str(log.KeyCartID, f.cartID).Logger()
	if f.recorder != nil {
		if err := f.recorder.RecordAttempt(c, attempt); err != nil {
			logger.Warn().Err(err).Msg("failed recording checkout attempt")
		}
	}
	if f.publisher != nil && attempt.State == StateSuccess {
		if err := f.publisher.PublishCheckedOut(c, attempt); err != nil {
			logger.Warn().Err(err).Msg("failed publishing checkout event")
		}
	}
}

// Retry moves a failed checkout back to idle.
func (f *Flow) Retry() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status.State != StateError {
		return inErrors.ErrCheckoutNotRetryable
	}
	f.status = Status{State: StateIdle, UpdatedAt: f.now()}
	return nil
}

func errorMessage(err error) string {
	var apiErr *inErrors.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	var validationErr *inErrors.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Error()
	}
	var draftsErr *AllDraftsFailedError
	if errors.As(err, &draftsErr) {
		return draftsErr.Error()
	}
	if err.Error() == "" {
		return defaultErrorMessage
	}
	return err.Error()
}
