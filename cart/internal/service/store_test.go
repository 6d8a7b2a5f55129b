package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alturino/makelocal/cart/internal/persistence"
	"github.com/Alturino/makelocal/cart/pkg/request"
	"github.com/Alturino/makelocal/cart/pkg/response"
	inErrors "github.com/Alturino/makelocal/internal/errors"
	"github.com/Alturino/makelocal/internal/storage"
)

const testCartID = "3f2b8c1e-6d4a-4c6b-9a51-0d7e2f8b1c34"

var start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type tokens struct {
	token string
	err   error
	calls int
}

func (t *tokens) EnsureValid(context.Context) (string, error) {
	t.calls++
	return t.token, t.err
}

// flakyStorage fails every Set while failSet is non nil.
type flakyStorage struct {
	*storage.MemoryStorage
	mu      sync.Mutex
	failSet error
}

func (f *flakyStorage) Set(c context.Context, key string, v any, ttl time.Duration) error {
	f.mu.Lock()
	err := f.failSet
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.MemoryStorage.Set(c, key, v, ttl)
}

func (f *flakyStorage) fail(err error) {
	f.mu.Lock()
	f.failSet = err
	f.mu.Unlock()
}

func newStore(t *testing.T, tok TokenSource, opts ...StoreOption) (*CartStore, *flakyStorage) {
	t.Helper()
	store := &flakyStorage{MemoryStorage: storage.NewMemoryStorage(0)}
	now := func() time.Time { return start }
	ids := 0
	opts = append([]StoreOption{
		WithStoreClock(now),
		WithItemIDs(func() string {
			ids++
			return fmt.Sprintf("item-%d", ids)
		}),
	}, opts...)
	return NewCartStore(testCartID, persistence.New(store, testCartID, now), tok, opts...), store
}

func addReq(productID string, quantity int, cust *response.Customizations) request.AddItem {
	return request.AddItem{
		ProductID:      productID,
		ProductSlug:    productID,
		ProductName:    "Product " + productID,
		BasePrice:      decimal.RequireFromString("12.50"),
		Customizations: cust,
		Quantity:       quantity,
	}
}

func assertNoDrift(t *testing.T, s *CartStore) {
	t.Helper()
	cart := s.Cart()
	total := 0
	price := decimal.Zero
	for _, item := range cart.Items {
		total += item.Quantity
		price = price.Add(item.BasePrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	summary := s.Summary()
	assert.Equal(t, total, summary.TotalItems)
	assert.True(t, price.Equal(summary.TotalPrice), "expected %s got %s", price, summary.TotalPrice)
	assert.Equal(t, len(cart.Items), summary.ItemCount)
}

func TestCartStoreAddItemMerges(t *testing.T) {
	c := context.Background()
	s, _ := newStore(t, &tokens{token: "tok"})

	cust := &response.Customizations{Text: "Hello", ColorID: "red"}
	for range 5 {
		_, err := s.AddItem(c, addReq("P1", 1, &response.Customizations{Text: "Hello", ColorID: "red"}))
		require.NoError(t, err)
	}
	cart := s.Cart()
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 5, cart.Items[0].Quantity)
	assert.True(t, cart.Items[0].Customizations.Equal(cust))
	assert.Equal(t, "tok", cart.SessionToken)

	_, err := s.AddItem(c, addReq("P1", 1, &response.Customizations{Text: "Other"}))
	require.NoError(t, err)
	assert.Len(t, s.Cart().Items, 2)
	assert.Equal(t, 6, s.Summary().TotalItems)
	assertNoDrift(t, s)
}

func TestCartStoreAddItemDefaultsQuantity(t *testing.T) {
	s, _ := newStore(t, nil)
	added, err := s.AddItem(context.Background(), addReq("P1", 0, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, added.Quantity)
	assert.Equal(t, "item-1", added.ID)
	assert.Equal(t, start, added.AddedAt)
	require.NotNil(t, added.Customizations)
	assert.True(t, added.Customizations.IsEmpty())
}

func TestCartStoreAddItemNilCustomizationsMatchEmpty(t *testing.T) {
	c := context.Background()
	s, _ := newStore(t, nil)
	_, err := s.AddItem(c, addReq("P1", 1, nil))
	require.NoError(t, err)
	_, err = s.AddItem(c, addReq("P1", 2, &response.Customizations{}))
	require.NoError(t, err)

	cart := s.Cart()
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)
}

func TestCartStoreAddItemCeilings(t *testing.T) {
	c := context.Background()

	t.Run("tenth distinct product fits and eleventh is rejected", func(t *testing.T) {
		s, _ := newStore(t, nil)
		for i := range 9 {
			_, err := s.AddItem(c, addReq(fmt.Sprintf("P%d", i), 1, nil))
			require.NoError(t, err)
		}
		_, err := s.AddItem(c, addReq("P9", 1, nil))
		require.NoError(t, err)
		assert.Equal(t, 10, s.Summary().TotalItems)
		assert.Equal(t, 10, s.Summary().ItemCount)

		before := s.Cart()
		_, err = s.AddItem(c, addReq("P10", 1, nil))
		assert.ErrorIs(t, err, inErrors.ErrTooManyUniqueItems)
		assert.Equal(t, before, s.Cart())
	})

	t.Run("cart full leaves cart unchanged", func(t *testing.T) {
		s, store := newStore(t, nil)
		_, err := s.AddItem(c, addReq("P1", 8, nil))
		require.NoError(t, err)
		before := s.Cart()
		var stored map[string]any
		_, err = store.Get(c, "makelocal-cart:"+testCartID, &stored)
		require.NoError(t, err)

		_, err = s.AddItem(c, addReq("P2", 3, nil))
		assert.ErrorIs(t, err, inErrors.ErrCartFull)
		assert.Equal(t, before, s.Cart())

		var after map[string]any
		_, err = store.Get(c, "makelocal-cart:"+testCartID, &after)
		require.NoError(t, err)
		assert.Equal(t, stored, after)
	})

	t.Run("merge over ten per line is rejected", func(t *testing.T) {
		s, _ := newStore(t, nil)
		_, err := s.AddItem(c, addReq("P1", 6, nil))
		require.NoError(t, err)
		_, err = s.AddItem(c, addReq("P1", 5, nil))
		assert.ErrorIs(t, err, inErrors.ErrQuantityTooHigh)
		assert.Equal(t, 6, s.Cart().Items[0].Quantity)
	})

	t.Run("merge into a full set of products is allowed", func(t *testing.T) {
		s, _ := newStore(t, nil)
		for i := range 9 {
			_, err := s.AddItem(c, addReq(fmt.Sprintf("P%d", i), 1, nil))
			require.NoError(t, err)
		}
		_, err := s.AddItem(c, addReq("P0", 1, nil))
		require.NoError(t, err)
		assert.Equal(t, 2, s.Cart().Items[0].Quantity)
	})

	t.Run("negative quantity never lowers a merged line", func(t *testing.T) {
		tok := &tokens{token: "tok"}
		s, _ := newStore(t, tok)
		_, err := s.AddItem(c, addReq("P1", 5, nil))
		require.NoError(t, err)
		_, err = s.AddItem(c, addReq("P1", -3, nil))
		assert.ErrorIs(t, err, inErrors.ErrQuantityTooLow)
		assert.Equal(t, 5, s.Cart().Items[0].Quantity)
		assert.Equal(t, 1, tok.calls)
	})

	t.Run("requested quantity above ten is rejected", func(t *testing.T) {
		s, _ := newStore(t, nil)
		_, err := s.AddItem(c, addReq("P1", 11, nil))
		assert.ErrorIs(t, err, inErrors.ErrQuantityTooHigh)
		assert.Empty(t, s.Cart().Items)
	})
}

func TestCartStoreAddItemWithoutSession(t *testing.T) {
	tok := &tokens{err: errors.New("offline")}
	s, _ := newStore(t, tok)
	_, err := s.AddItem(context.Background(), addReq("P1", 1, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, tok.calls)
	assert.Empty(t, s.Cart().SessionToken)
	assert.False(t, s.Snapshot().HasSession)
}

func TestCartStoreFailedSaveKeepsMemory(t *testing.T) {
	c := context.Background()
	s, store := newStore(t, nil)
	_, err := s.AddItem(c, addReq("P1", 2, nil))
	require.NoError(t, err)
	before := s.Cart()
	summary := s.Summary()

	store.fail(&inErrors.StorageError{Code: inErrors.CodeQuotaExceeded, Key: "k"})

	_, err = s.AddItem(c, addReq("P2", 1, nil))
	assert.ErrorIs(t, err, inErrors.ErrQuotaExceeded)
	err = s.UpdateQuantity(c, before.Items[0].ID, 5)
	assert.ErrorIs(t, err, inErrors.ErrQuotaExceeded)
	err = s.RemoveItem(c, before.Items[0].ID)
	assert.ErrorIs(t, err, inErrors.ErrQuotaExceeded)

	assert.Equal(t, before, s.Cart())
	assert.Equal(t, summary, s.Summary())
}

func TestCartStoreUpdateQuantity(t *testing.T) {
	c := context.Background()

	t.Run("permissive by default", func(t *testing.T) {
		s, _ := newStore(t, nil)
		a, err := s.AddItem(c, addReq("P1", 5, nil))
		require.NoError(t, err)
		_, err = s.AddItem(c, addReq("P2", 5, nil))
		require.NoError(t, err)

		require.NoError(t, s.UpdateQuantity(c, a.ID, 9))
		assert.Equal(t, 14, s.Summary().TotalItems)
		assertNoDrift(t, s)
	})

	t.Run("strict mode keeps the total ceiling", func(t *testing.T) {
		s, _ := newStore(t, nil, WithStrictTotalOnUpdate(true))
		a, err := s.AddItem(c, addReq("P1", 5, nil))
		require.NoError(t, err)
		_, err = s.AddItem(c, addReq("P2", 5, nil))
		require.NoError(t, err)

		err = s.UpdateQuantity(c, a.ID, 6)
		assert.ErrorIs(t, err, inErrors.ErrCartFull)
		assert.Equal(t, 5, s.Cart().Items[0].Quantity)

		require.NoError(t, s.UpdateQuantity(c, a.ID, 4))
		assert.Equal(t, 9, s.Summary().TotalItems)
	})

	t.Run("out of range quantity", func(t *testing.T) {
		s, _ := newStore(t, nil)
		a, err := s.AddItem(c, addReq("P1", 1, nil))
		require.NoError(t, err)
		assert.ErrorIs(t, s.UpdateQuantity(c, a.ID, 0), inErrors.ErrQuantityTooLow)
		assert.ErrorIs(t, s.UpdateQuantity(c, a.ID, 11), inErrors.ErrQuantityTooHigh)
	})

	t.Run("unknown item", func(t *testing.T) {
		s, _ := newStore(t, nil)
		assert.ErrorIs(t, s.UpdateQuantity(c, "missing", 2), inErrors.ErrCartItemNotFound)
	})
}

func TestCartStoreRemoveAndClear(t *testing.T) {
	c := context.Background()
	s, store := newStore(t, nil)
	a, err := s.AddItem(c, addReq("P1", 2, nil))
	require.NoError(t, err)
	_, err = s.AddItem(c, addReq("P2", 3, nil))
	require.NoError(t, err)

	require.NoError(t, s.RemoveItem(c, a.ID))
	assert.Len(t, s.Cart().Items, 1)
	assert.Equal(t, 3, s.Summary().TotalItems)
	assertNoDrift(t, s)

	require.NoError(t, s.RemoveItem(c, "missing"))
	assert.Len(t, s.Cart().Items, 1)

	require.NoError(t, s.Clear(c))
	assert.Empty(t, s.Cart().Items)
	assert.Equal(t, 0, s.Summary().TotalItems)
	assert.False(t, store.Has("makelocal-cart:"+testCartID))
}

func TestCartStoreLoadPersisted(t *testing.T) {
	c := context.Background()
	s, store := newStore(t, nil)
	_, err := s.AddItem(c, addReq("P1", 4, nil))
	require.NoError(t, err)

	now := func() time.Time { return start }
	restored := NewCartStore(testCartID, persistence.New(store, testCartID, now), nil, WithStoreClock(now))
	restored.LoadPersisted(c)
	assert.Equal(t, 4, restored.Summary().TotalItems)
	assert.Equal(t, s.Cart().Items[0].ID, restored.Cart().Items[0].ID)
}

func TestCartStoreExtendAndSnapshot(t *testing.T) {
	c := context.Background()
	store := &flakyStorage{MemoryStorage: storage.NewMemoryStorage(0)}
	now := start
	clock := func() time.Time { return now }
	s := NewCartStore(testCartID, persistence.New(store, testCartID, clock), nil, WithStoreClock(clock))

	now = start.Add(6*24*time.Hour + time.Hour)
	view := s.Snapshot()
	assert.Equal(t, 1, view.DaysUntilExpiration)
	assert.True(t, view.ExpiringSoon)

	require.NoError(t, s.Extend(c))
	view = s.Snapshot()
	assert.Equal(t, now.Add(persistence.TTL), view.Cart.ExpiresAt)
	assert.Equal(t, 7, view.DaysUntilExpiration)
	assert.False(t, view.ExpiringSoon)
	assert.Equal(t, testCartID, view.CartID)
}

func TestCartStoreConcurrentAdds(t *testing.T) {
	c := context.Background()
	s, _ := newStore(t, nil, WithItemIDs(func() string { return "" }))

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AddItem(c, addReq("P1", 1, nil)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	assert.Equal(t, 10, s.Summary().TotalItems)
	rejected := 0
	for err := range errs {
		assert.ErrorIs(t, err, inErrors.ErrQuantityTooHigh)
		rejected++
	}
	assert.Equal(t, 10, rejected)
}

func TestCartStoreClearSubmitted(t *testing.T) {
	c := context.Background()

	t.Run("keeps lines and quantity added after the snapshot", func(t *testing.T) {
		s, store := newStore(t, nil)
		_, err := s.AddItem(c, addReq("P1", 2, nil))
		require.NoError(t, err)
		_, err = s.AddItem(c, addReq("P2", 1, nil))
		require.NoError(t, err)
		submitted := s.Cart()

		_, err = s.AddItem(c, addReq("P1", 3, nil))
		require.NoError(t, err)
		_, err = s.AddItem(c, addReq("P3", 1, nil))
		require.NoError(t, err)

		require.NoError(t, s.ClearSubmitted(c, submitted))
		cart := s.Cart()
		require.Len(t, cart.Items, 2)
		assert.Equal(t, "P1", cart.Items[0].ProductID)
		assert.Equal(t, 3, cart.Items[0].Quantity)
		assert.Equal(t, "P3", cart.Items[1].ProductID)
		assert.True(t, store.Has("makelocal-cart:"+testCartID))
		assertNoDrift(t, s)
	})

	t.Run("clears the cart when nothing changed", func(t *testing.T) {
		s, store := newStore(t, nil)
		_, err := s.AddItem(c, addReq("P1", 2, nil))
		require.NoError(t, err)

		require.NoError(t, s.ClearSubmitted(c, s.Cart()))
		assert.Empty(t, s.Cart().Items)
		assert.Equal(t, 0, s.Summary().TotalItems)
		assert.False(t, store.Has("makelocal-cart:"+testCartID))
	})

	t.Run("lines lowered or removed meanwhile are dropped", func(t *testing.T) {
		s, _ := newStore(t, nil)
		a, err := s.AddItem(c, addReq("P1", 4, nil))
		require.NoError(t, err)
		b, err := s.AddItem(c, addReq("P2", 1, nil))
		require.NoError(t, err)
		submitted := s.Cart()

		require.NoError(t, s.UpdateQuantity(c, a.ID, 1))
		require.NoError(t, s.RemoveItem(c, b.ID))

		require.NoError(t, s.ClearSubmitted(c, submitted))
		assert.Empty(t, s.Cart().Items)
	})
}

func TestCartStoreExpiredCartStartsOver(t *testing.T) {
	c := context.Background()
	store := &flakyStorage{MemoryStorage: storage.NewMemoryStorage(0)}
	now := start
	clock := func() time.Time { return now }
	s := NewCartStore(testCartID, persistence.New(store, testCartID, clock), nil, WithStoreClock(clock))

	a, err := s.AddItem(c, addReq("P1", 2, nil))
	require.NoError(t, err)

	now = start.Add(persistence.TTL + time.Hour)
	assert.ErrorIs(t, s.UpdateQuantity(c, a.ID, 3), inErrors.ErrCartItemNotFound)
	assert.Empty(t, s.Cart().Items)
	assert.False(t, store.Has("makelocal-cart:"+testCartID))

	require.NoError(t, s.Extend(c))
	assert.Equal(t, now.Add(persistence.TTL), s.Cart().ExpiresAt)
	assert.Equal(t, 0, s.Summary().TotalItems)
}
