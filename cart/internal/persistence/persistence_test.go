package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alturino/makelocal/cart/internal/repository"
	"github.com/Alturino/makelocal/cart/pkg/response"
	inErrors "github.com/Alturino/makelocal/internal/errors"
	"github.com/Alturino/makelocal/internal/storage"
)

var start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T, maxValueBytes int) (*Persistence, *storage.MemoryStorage, *time.Time) {
	t.Helper()
	now := start
	store := storage.NewMemoryStorage(maxValueBytes)
	return New(store, "cart-1", func() time.Time { return now }), store, &now
}

func sampleCart(p *Persistence) response.Cart {
	cart := p.CreateEmptyCart()
	cart.Items = append(cart.Items, response.CartItem{
		ID:             "i1",
		ProductID:      "p1",
		ProductSlug:    "mug",
		ProductName:    "Mug",
		BasePrice:      decimal.RequireFromString("19.99"),
		Customizations: &response.Customizations{Text: "Hello"},
		Quantity:       2,
		AddedAt:        start,
	})
	cart.SessionToken = "tok"
	return cart
}

func TestCreateEmptyCart(t *testing.T) {
	p, _, _ := setup(t, 0)
	cart := p.CreateEmptyCart()
	assert.Empty(t, cart.Items)
	assert.NotNil(t, cart.Items)
	assert.Equal(t, start, cart.CreatedAt)
	assert.Equal(t, start, cart.UpdatedAt)
	assert.Equal(t, start.Add(TTL), cart.ExpiresAt)
}

func TestSaveAndLoadCart(t *testing.T) {
	t.Run("given saved cart should load it back and stamp updatedAt", func(t *testing.T) {
		p, store, now := setup(t, 0)
		cart := sampleCart(p)
		*now = start.Add(time.Hour)

		saved, err := p.SaveCart(context.Background(), cart)
		require.NoError(t, err)
		assert.Equal(t, start.Add(time.Hour), saved.UpdatedAt)
		assert.True(t, store.Has(StorageKeyPrefix+"cart-1"))

		loaded := p.LoadCart(context.Background())
		require.Len(t, loaded.Items, 1)
		assert.Equal(t, "tok", loaded.SessionToken)
		assert.True(t, decimal.RequireFromString("19.99").Equal(loaded.Items[0].BasePrice))
		assert.Equal(t, "Hello", loaded.Items[0].Customizations.Text)
		assert.Equal(t, saved.UpdatedAt.UnixMilli(), loaded.UpdatedAt.UnixMilli())
		assert.Equal(t, cart.ExpiresAt.UnixMilli(), loaded.ExpiresAt.UnixMilli())
	})

	t.Run("given absent record should return empty cart", func(t *testing.T) {
		p, _, _ := setup(t, 0)
		cart := p.LoadCart(context.Background())
		assert.Empty(t, cart.Items)
		assert.Equal(t, start.Add(TTL), cart.ExpiresAt)
	})

	t.Run("given expired record should discard it", func(t *testing.T) {
		p, store, now := setup(t, 0)
		_, err := p.SaveCart(context.Background(), sampleCart(p))
		require.NoError(t, err)

		*now = start.Add(TTL + time.Millisecond)
		cart := p.LoadCart(context.Background())
		assert.Empty(t, cart.Items)
		assert.Equal(t, now.Add(TTL), cart.ExpiresAt)
		assert.False(t, store.Has(p.Key()))
	})

	t.Run("given record expiring exactly now should still load", func(t *testing.T) {
		p, _, now := setup(t, 0)
		_, err := p.SaveCart(context.Background(), sampleCart(p))
		require.NoError(t, err)

		*now = start.Add(TTL)
		assert.Len(t, p.LoadCart(context.Background()).Items, 1)
	})

	t.Run("given unparseable record should degrade to empty cart", func(t *testing.T) {
		p, store, _ := setup(t, 0)
		require.NoError(t, store.SetRaw(p.Key(), []byte(`{"items":"nope"`), 0))

		cart := p.LoadCart(context.Background())
		assert.Empty(t, cart.Items)
		assert.False(t, store.Has(p.Key()))
	})

	t.Run("given storage over quota should surface the error", func(t *testing.T) {
		p, _, _ := setup(t, 16)
		_, err := p.SaveCart(context.Background(), sampleCart(p))
		require.ErrorIs(t, err, inErrors.ErrQuotaExceeded)
	})
}

func TestClearCart(t *testing.T) {
	p, store, _ := setup(t, 0)
	require.NoError(t, store.Set(context.Background(), p.Key(), repository.NewCartRecord(sampleCart(p)), 0))
	p.ClearCart(context.Background())
	assert.False(t, store.Has(p.Key()))
}

func TestExpirationHelpers(t *testing.T) {
	p, _, now := setup(t, 0)
	cart := p.CreateEmptyCart()

	assert.False(t, p.IsCartExpired(cart))
	assert.Equal(t, 7, p.DaysUntilExpiration(cart))
	assert.False(t, p.IsCartExpiringSoon(cart))

	*now = start.Add(6*24*time.Hour + time.Hour)
	assert.Equal(t, 1, p.DaysUntilExpiration(cart))
	assert.True(t, p.IsCartExpiringSoon(cart))

	*now = start.Add(5*24*time.Hour + time.Minute)
	assert.Equal(t, 2, p.DaysUntilExpiration(cart))

	*now = start.Add(8 * 24 * time.Hour)
	assert.True(t, p.IsCartExpired(cart))
	assert.Equal(t, 0, p.DaysUntilExpiration(cart))

	extended := p.ExtendCartExpiration(cart)
	assert.Equal(t, now.Add(TTL), extended.ExpiresAt)
	assert.Equal(t, *now, extended.UpdatedAt)
	assert.Equal(t, cart.CreatedAt, extended.CreatedAt)
}
