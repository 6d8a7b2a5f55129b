package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/Alturino/makelocal/cart/internal/persistence"
	"github.com/Alturino/makelocal/cart/internal/validation"
	"github.com/Alturino/makelocal/cart/pkg/request"
	"github.com/Alturino/makelocal/cart/pkg/response"
	inErrors "github.com/Alturino/makelocal/internal/errors"
	"github.com/Alturino/makelocal/internal/log"
	"github.com/Alturino/makelocal/internal/metrics"
	"github.com/Alturino/makelocal/internal/otel"
	"github.com/Alturino/makelocal/internal/session"
)

const (
	opAddItem        = "add_item"
	opRemoveItem     = "remove_item"
	opUpdateQuantity = "update_quantity"
	opClear          = "clear"
	opExtend         = "extend"
)

type TokenSource interface {
	EnsureValid(c context.Context) (string, error)
}

// CartStore owns one cart. Every mutation builds the next cart on a copy,
// saves it, and only then replaces the current one, so a failed save leaves
// the cart exactly as it was.
type CartStore struct {
	cartID      string
	persistence *persistence.Persistence
	tokens      TokenSource
	metrics     *metrics.Metrics
	strictTotal bool
	now         func() time.Time
	newID       func() string

	mu      sync.RWMutex
	cart    response.Cart
	summary response.Summary
}

type StoreOption func(*CartStore)

func WithStrictTotalOnUpdate(strict bool) StoreOption {
	return func(s *CartStore) { s.strictTotal = strict }
}

func WithStoreMetrics(m *metrics.Metrics) StoreOption {
	return func(s *CartStore) { s.metrics = m }
}

func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *CartStore) { s.now = now }
}

func WithItemIDs(newID func() string) StoreOption {
	return func(s *CartStore) { s.newID = newID }
}

func NewCartStore(
	cartID string,
	p *persistence.Persistence,
	tokens TokenSource,
	opts ...StoreOption,
) *CartStore {
	s := &CartStore{
		cartID:      cartID,
		persistence: p,
		tokens:      tokens,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cart = p.CreateEmptyCart()
	s.summary = response.Summarize(nil)
	return s
}

func (s *CartStore) CartID() string { return s.cartID }

// LoadPersisted replaces the in memory cart with the stored one.
func (s *CartStore) LoadPersisted(c context.Context) {
	c, span := otel.Tracer.Start(c, "CartStore LoadPersisted")
	defer span.End()

	cart := s.persistence.LoadCart(c)
	s.mu.Lock()
	s.cart = cart
	s.summary = response.Summarize(cart.Items)
	s.mu.Unlock()

	zerolog.Ctx(c).Info().
		Str(log.KeyTag, "CartStore LoadPersisted").
		Str(log.KeyCartID, s.cartID).
		Int(log.KeyCartItemsCount, len(cart.Items)).
		Msg("loaded persisted cart")
}

func (s *CartStore) Cart() response.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Clone()
}

func (s *CartStore) Summary() response.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary
}

func (s *CartStore) Snapshot() response.View {
	s.mu.RLock()
	cart := s.cart.Clone()
	summary := s.summary
	s.mu.RUnlock()
	return response.View{
		CartID:              s.cartID,
		Cart:                cart,
		Summary:             summary,
		HasSession:          cart.SessionToken != "",
		DaysUntilExpiration: s.persistence.DaysUntilExpiration(cart),
		ExpiringSoon:        s.persistence.IsCartExpiringSoon(cart),
	}
}

func (s *CartStore) AddItem(c context.Context, item request.AddItem) (response.CartItem, error) {
	c, span := otel.Tracer.Start(c, "CartStore AddItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartStore AddItem").
		Str(log.KeyCartID, s.cartID).
		Str(log.KeyProductID, item.ProductID).
		Logger()

	quantity := item.Quantity
	if quantity == 0 {
		quantity = 1
	}
	logger = logger.With().Int(log.KeyCartItemQuantity, quantity).Logger()
	if err := validation.ValidateQuantity(quantity); err != nil {
		return s.reject(span, logger, opAddItem, err)
	}

	logger = logger.With().Str(log.KeyProcess, "acquiring session token").Logger()
	token := ""
	if s.tokens != nil {
		var err error
		token, err = s.tokens.EnsureValid(c)
		if err != nil {
			logger.Warn().Err(err).Msg("failed acquiring session token, continuing without one")
			token = ""
		} else {
			logger.Debug().Str(log.KeyTokenFingerprint, session.Fingerprint(token)).Msg("acquired session token")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.base(c)
	if token != "" {
		next.SessionToken = token
	}

	var added response.CartItem
	if i, ok := validation.FindDuplicateItem(next, item.ProductID, item.Customizations); ok {
		logger = logger.With().Str(log.KeyProcess, "merging duplicate item").Logger()
		merged := next.Items[i].Quantity + quantity
		if err := validation.ValidateQuantity(merged); err != nil {
			return s.reject(span, logger, opAddItem, err)
		}
		if err := validation.CanMergeIntoCart(next, quantity); err != nil {
			return s.reject(span, logger, opAddItem, err)
		}
		next.Items[i].Quantity = merged
		added = next.Items[i]
		logger = logger.With().Int(log.KeyCartMergedQuantity, merged).Logger()
	} else {
		logger = logger.With().Str(log.KeyProcess, "appending new item").Logger()
		if err := validation.CanAddToCart(next, quantity); err != nil {
			return s.reject(span, logger, opAddItem, err)
		}
		customizations := response.Customizations{}
		if item.Customizations != nil {
			customizations = *item.Customizations
		}
		added = response.CartItem{
			ID:             s.newID(),
			ProductID:      item.ProductID,
			ProductSlug:    item.ProductSlug,
			ProductName:    item.ProductName,
			BasePrice:      item.BasePrice,
			Customizations: &customizations,
			Quantity:       quantity,
			AddedAt:        s.now(),
		}
		next.Items = append(next.Items, added)
	}

	if err := s.commit(c, opAddItem, next); err != nil {
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.CartItem{}, err
	}
	logger.Info().Str(log.KeyCartItemID, added.ID).Int(log.KeyCartTotalItems, s.summary.TotalItems).Msg("added item")
	return added, nil
}

func (s *CartStore) reject(
	span trace.Span,
	logger zerolog.Logger,
	op string,
	err error,
) (response.CartItem, error) {
	inErrors.HandleError(err, span)
	logger.Warn().Err(err).Msg("rejected cart change")
	s.metrics.ObserveCartMutation(op, 0, err)
	return response.CartItem{}, err
}

func (s *CartStore) RemoveItem(c context.Context, itemID string) error {
	c, span := otel.Tracer.Start(c, "CartStore RemoveItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartStore RemoveItem").
		Str(log.KeyCartID, s.cartID).
		Str(log.KeyCartItemID, itemID).
		Logger()

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.base(c)
	items := next.Items[:0]
	for _, item := range next.Items {
		if item.ID != itemID {
			items = append(items, item)
		}
	}
	next.Items = items

	if err := s.commit(c, opRemoveItem, next); err != nil {
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Int(log.KeyCartTotalItems, s.summary.TotalItems).Msg("removed item")
	return nil
}

// UpdateQuantity sets the quantity of one line. The cart wide ceiling is only
// rechecked when the store runs with WithStrictTotalOnUpdate.
func (s *CartStore) UpdateQuantity(c context.Context, itemID string, quantity int) error {
	c, span := otel.Tracer.Start(c, "CartStore UpdateQuantity")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartStore UpdateQuantity").
		Str(log.KeyCartID, s.cartID).
		Str(log.KeyCartItemID, itemID).
		Int(log.KeyCartItemQuantity, quantity).
		Logger()

	if err := validation.ValidateQuantity(quantity); err != nil {
		_, err = s.reject(span, logger, opUpdateQuantity, err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.base(c)
	i, ok := validation.FindCartItem(next, itemID)
	if !ok {
		err := fmt.Errorf("failed updating quantity of itemId=%s with error=%w", itemID, inErrors.ErrCartItemNotFound)
		_, err = s.reject(span, logger, opUpdateQuantity, err)
		return err
	}
	next.Items[i].Quantity = quantity
	if s.strictTotal && validation.GetTotalQuantity(next) > validation.MaxTotalItems {
		err := inErrors.NewValidationError(
			inErrors.CodeCartFull, "quantity",
			"Cannot update item. Cart limit is %d items total", validation.MaxTotalItems,
		)
		_, rerr := s.reject(span, logger, opUpdateQuantity, err)
		return rerr
	}

	if err := s.commit(c, opUpdateQuantity, next); err != nil {
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Int(log.KeyCartTotalItems, s.summary.TotalItems).Msg("updated quantity")
	return nil
}

// Clear starts over with a fresh empty cart and drops the stored record.
func (s *CartStore) Clear(c context.Context) error {
	c, span := otel.Tracer.Start(c, "CartStore Clear")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.persistence.ClearCart(c)
	s.cart = s.persistence.CreateEmptyCart()
	s.summary = response.Summarize(nil)
	s.metrics.ObserveCartMutation(opClear, 0, nil)

	zerolog.Ctx(c).Info().
		Str(log.KeyTag, "CartStore Clear").
		Str(log.KeyCartID, s.cartID).
		Msg("cleared cart")
	return nil
}

// ClearSubmitted removes what a checkout sent from the cart. Lines added or
// raised after the snapshot was taken stay with whatever was not submitted.
// The cart is cleared outright once nothing is left.
func (s *CartStore) ClearSubmitted(c context.Context, submitted response.Cart) error {
	c, span := otel.Tracer.Start(c, "CartStore ClearSubmitted")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartStore ClearSubmitted").
		Str(log.KeyCartID, s.cartID).
		Int(log.KeyCartItemsCount, len(submitted.Items)).
		Logger()

	sent := make(map[string]int, len(submitted.Items))
	for _, item := range submitted.Items {
		sent[item.ID] += item.Quantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.base(c)
	items := next.Items[:0]
	for _, item := range next.Items {
		if q, ok := sent[item.ID]; ok {
			item.Quantity -= q
			if item.Quantity <= 0 {
				continue
			}
		}
		items = append(items, item)
	}
	next.Items = items

	if len(next.Items) == 0 {
		s.persistence.ClearCart(c)
		s.cart = s.persistence.CreateEmptyCart()
		s.summary = response.Summarize(nil)
		s.metrics.ObserveCartMutation(opClear, 0, nil)
		logger.Info().Msg("cleared submitted cart")
		return nil
	}

	if err := s.commit(c, opClear, next); err != nil {
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Int(log.KeyCartTotalItems, s.summary.TotalItems).Msg("cleared submitted items, kept later changes")
	return nil
}

// Extend pushes the expiry a full lifetime past now.
func (s *CartStore) Extend(c context.Context) error {
	c, span := otel.Tracer.Start(c, "CartStore Extend")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.persistence.ExtendCartExpiration(s.base(c))
	if err := s.commit(c, opExtend, next); err != nil {
		inErrors.HandleError(err, span)
		zerolog.Ctx(c).Error().Err(err).Str(log.KeyCartID, s.cartID).Msg(err.Error())
		return err
	}
	zerolog.Ctx(c).Info().
		Str(log.KeyTag, "CartStore Extend").
		Str(log.KeyCartID, s.cartID).
		Time(log.KeyCartExpiresAt, s.cart.ExpiresAt).
		Msg("extended cart expiration")
	return nil
}

// base returns a copy of the current cart to build the next one on. A cart
// that expired while held in memory is dropped first, the same way LoadCart
// drops it. Callers hold s.mu.
func (s *CartStore) base(c context.Context) response.Cart {
	if s.persistence.IsCartExpired(s.cart) {
		zerolog.Ctx(c).Info().
			Str(log.KeyCartID, s.cartID).
			Time(log.KeyCartExpiresAt, s.cart.ExpiresAt).
			Msg("cart expired, starting with an empty one")
		s.persistence.ClearCart(c)
		s.cart = s.persistence.CreateEmptyCart()
		s.summary = response.Summarize(nil)
	}
	return s.cart.Clone()
}

// commit saves next and publishes it. Callers hold s.mu.
func (s *CartStore) commit(c context.Context, op string, next response.Cart) error {
	saved, err := s.persistence.SaveCart(c, next)
	if err != nil {
		err = fmt.Errorf("failed persisting cart on %s with error=%w", op, err)
		s.metrics.ObserveCartMutation(op, 0, err)
		return err
	}
	s.cart = saved
	s.summary = response.Summarize(saved.Items)
	s.metrics.ObserveCartMutation(op, s.summary.TotalItems, nil)
	return nil
}
