// Package persistence maps carts to and from storage and applies the time
// based expiry rules.
package persistence

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alturino/makelocal/cart/internal/repository"
	"github.com/Alturino/makelocal/cart/pkg/response"
	inErrors "github.com/Alturino/makelocal/internal/errors"
	"github.com/Alturino/makelocal/internal/log"
	"github.com/Alturino/makelocal/internal/otel"
	"github.com/Alturino/makelocal/internal/storage"
)

const (
	TTL              = 7 * 24 * time.Hour
	StorageKeyPrefix = "makelocal-cart:"

	day = 24 * time.Hour
)

type Persistence struct {
	storage storage.Storage
	key     string
	now     func() time.Time
}

func New(store storage.Storage, cartID string, now func() time.Time) *Persistence {
	if now == nil {
		now = time.Now
	}
	return &Persistence{storage: store, key: StorageKeyPrefix + cartID, now: now}
}

func (p *Persistence) Key() string { return p.key }

func (p *Persistence) CreateEmptyCart() response.Cart {
	now := p.now()
	return response.Cart{
		Items:     []response.CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(TTL),
	}
}

// LoadCart returns the stored cart, or a fresh empty one when the record is
// absent, expired or unreadable. Stale records are removed best effort.
func (p *Persistence) LoadCart(c context.Context) response.Cart {
	c, span := otel.Tracer.Start(c, "Persistence LoadCart")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Persistence LoadCart").
		Str(log.KeyStorageKey, p.key).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "reading cart").Logger()
	logger.Debug().Msg("reading cart")
	rec := repository.CartRecord{}
	found, err := p.storage.Get(c, p.key, &rec)
	if err != nil {
		err = fmt.Errorf("failed loading cart with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Warn().Err(err).Msg("failed loading cart, starting with an empty one")
		p.remove(c)
		return p.CreateEmptyCart()
	}
	if !found {
		logger.Debug().Msg("no stored cart, starting with an empty one")
		return p.CreateEmptyCart()
	}

	cart := rec.Response()
	if p.IsCartExpired(cart) {
		logger.Info().Time(log.KeyCartExpiresAt, cart.ExpiresAt).Msg("stored cart expired, discarding it")
		p.remove(c)
		return p.CreateEmptyCart()
	}
	logger.Debug().Int(log.KeyCartItemsCount, len(cart.Items)).Msg("read cart")
	return cart
}

// SaveCart stamps UpdatedAt and writes the whole cart. Storage failures are
// returned unchanged in kind.
func (p *Persistence) SaveCart(c context.Context, cart response.Cart) (response.Cart, error) {
	c, span := otel.Tracer.Start(c, "Persistence SaveCart")
	defer span.End()

	now := p.now()
	cart.UpdatedAt = now
	if err := p.storage.Set(c, p.key, repository.NewCartRecord(cart), cart.ExpiresAt.Sub(now)); err != nil {
		err = fmt.Errorf("failed saving cart with error=%w", err)
		inErrors.HandleError(err, span)
		zerolog.Ctx(c).Error().Err(err).Str(log.KeyStorageKey, p.key).Msg(err.Error())
		return response.Cart{}, err
	}
	return cart, nil
}

func (p *Persistence) ClearCart(c context.Context) {
	p.remove(c)
}

func (p *Persistence) remove(c context.Context) {
	if err := p.storage.Remove(c, p.key); err != nil {
		zerolog.Ctx(c).Warn().Err(err).Str(log.KeyStorageKey, p.key).Msg("failed removing stored cart")
	}
}

func (p *Persistence) IsCartExpired(cart response.Cart) bool {
	return p.now().After(cart.ExpiresAt)
}

func (p *Persistence) ExtendCartExpiration(cart response.Cart) response.Cart {
	now := p.now()
	cart.ExpiresAt = now.Add(TTL)
	cart.UpdatedAt = now
	return cart
}

func (p *Persistence) DaysUntilExpiration(cart response.Cart) int {
	remaining := cart.ExpiresAt.Sub(p.now())
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(float64(remaining) / float64(day)))
}

func (p *Persistence) IsCartExpiringSoon(cart response.Cart) bool {
	return p.DaysUntilExpiration(cart) <= 1
}
