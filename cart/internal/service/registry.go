package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Alturino/makelocal/cart/internal/persistence"
	"github.com/Alturino/makelocal/internal/api"
	"github.com/Alturino/makelocal/internal/config"
	inErrors "github.com/Alturino/makelocal/internal/errors"
	"github.com/Alturino/makelocal/internal/log"
	"github.com/Alturino/makelocal/internal/metrics"
	"github.com/Alturino/makelocal/internal/otel"
	"github.com/Alturino/makelocal/internal/session"
	"github.com/Alturino/makelocal/internal/storage"
	"github.com/Alturino/makelocal/order/pkg/checkout"
)

const (
	DefaultIdleTimeout = 30 * time.Minute
	DefaultMaxCarts    = 10000
)

type APIClient interface {
	Do(c context.Context, method, endpoint string, body, out any, opts ...api.RequestOption) error
}

// visitorScoper is implemented by clients that carry per visitor cookies.
// Each cart gets its own scoped client so one visitor's session cookie is
// never replayed for another.
type visitorScoper interface {
	Scoped() (*api.Client, error)
}

// Entry is everything the storefront keeps for one cart.
type Entry struct {
	Store    *CartStore
	Sessions *session.Manager
	Checkout *checkout.Flow
	Orders   *checkout.StatusFetcher

	load     sync.Once
	lastUsed time.Time
}

// Registry hands out one Entry per cart id, building it on first use.
type Registry struct {
	storage   storage.Storage
	client    APIClient
	cart      config.Cart
	metrics   *metrics.Metrics
	recorder  checkout.Recorder
	publisher checkout.Publisher
	now       func() time.Time

	idleTimeout time.Duration
	maxCarts    int

	mu      sync.Mutex
	entries map[string]*Entry
}

type RegistryOption func(*Registry)

func WithRegistryMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

func WithCheckoutRecorder(rec checkout.Recorder) RegistryOption {
	return func(r *Registry) { r.recorder = rec }
}

func WithCheckoutPublisher(p checkout.Publisher) RegistryOption {
	return func(r *Registry) { r.publisher = p }
}

func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(store storage.Storage, client APIClient, cartConfig config.Cart, opts ...RegistryOption) *Registry {
	r := &Registry{
		storage:     store,
		client:      client,
		cart:        cartConfig,
		now:         time.Now,
		idleTimeout: cartConfig.IdleTimeout,
		maxCarts:    cartConfig.MaxCarts,
		entries:     make(map[string]*Entry),
	}
	if r.idleTimeout <= 0 {
		r.idleTimeout = DefaultIdleTimeout
	}
	if r.maxCarts <= 0 {
		r.maxCarts = DefaultMaxCarts
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func ParseCartID(cartID string) (string, error) {
	if cartID == "" {
		return "", inErrors.ErrEmptyCartID
	}
	id, err := uuid.Parse(cartID)
	if err != nil {
		return "", fmt.Errorf("failed parsing cartId=%s with error=%w", cartID, inErrors.ErrInvalidCartID)
	}
	return id.String(), nil
}

// Create starts a cart under a fresh id.
func (r *Registry) Create(c context.Context) (*Entry, error) {
	return r.Get(c, uuid.NewString())
}

// Get returns the entry of cartID. The first call for an id restores the
// persisted cart.
func (r *Registry) Get(c context.Context, cartID string) (*Entry, error) {
	c, span := otel.Tracer.Start(c, "Registry Get")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Registry Get").
		Str(log.KeyCartID, cartID).
		Logger()

	id, err := ParseCartID(cartID)
	if err != nil {
		inErrors.HandleError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		return nil, err
	}

	r.mu.Lock()
	entry, ok := r.entries[id]
	if !ok {
		if len(r.entries) >= r.maxCarts {
			r.evictLocked(logger)
		}
		entry, err = r.build(id)
		if err != nil {
			r.mu.Unlock()
			err = fmt.Errorf("failed building cart entry with error=%w", err)
			inErrors.HandleError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return nil, err
		}
		r.entries[id] = entry
		logger.Debug().Int(log.KeyCartsCount, len(r.entries)).Msg("created cart entry")
	}
	entry.lastUsed = r.now()
	r.mu.Unlock()

	entry.load.Do(func() {
		entry.Store.LoadPersisted(logger.WithContext(c))
	})
	return entry, nil
}

func (r *Registry) build(cartID string) (*Entry, error) {
	client := r.client
	if scoper, ok := client.(visitorScoper); ok {
		scoped, err := scoper.Scoped()
		if err != nil {
			return nil, err
		}
		client = scoped
	}
	sessions := session.NewManager(
		client,
		r.storage,
		session.StorageKeyPrefix+cartID,
		session.WithClock(r.now),
		session.WithMetrics(r.metrics),
	)
	store := NewCartStore(
		cartID,
		persistence.New(r.storage, cartID, r.now),
		sessions,
		WithStrictTotalOnUpdate(r.cart.StrictTotalOnUpdate),
		WithStoreMetrics(r.metrics),
		WithStoreClock(r.now),
	)
	flowOpts := []checkout.FlowOption{
		checkout.WithFlowMetrics(r.metrics),
		checkout.WithFlowClock(r.now),
	}
	if r.recorder != nil {
		flowOpts = append(flowOpts, checkout.WithRecorder(r.recorder))
	}
	if r.publisher != nil {
		flowOpts = append(flowOpts, checkout.WithPublisher(r.publisher))
	}
	return &Entry{
		Store:    store,
		Sessions: sessions,
		Checkout: checkout.NewFlow(cartID, store, checkout.NewDrafter(client, sessions), flowOpts...),
		Orders:   checkout.NewStatusFetcher(client, sessions),
	}, nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep drops entries idle for longer than the idle timeout. Carts and
// sessions live in storage, so a dropped entry is rebuilt on its next use.
// Entries with a checkout in flight are kept.
func (r *Registry) Sweep(c context.Context) int {
	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "Registry Sweep").Logger()

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.idleTimeout)
	evicted := 0
	for id, entry := range r.entries {
		if entry.lastUsed.Before(cutoff) && entry.evictable() {
			delete(r.entries, id)
			evicted++
		}
	}
	if evicted > 0 {
		logger.Debug().Int(log.KeyCartsEvicted, evicted).Int(log.KeyCartsCount, len(r.entries)).Msg("evicted idle carts")
	}
	return evicted
}

// Run sweeps every interval until c is done.
func (r *Registry) Run(c context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = r.idleTimeout / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.Done():
			return
		case <-ticker.C:
			r.Sweep(c)
		}
	}
}

// evictLocked makes room for one entry, dropping the least recently used one
// that is not checking out. Callers hold r.mu.
func (r *Registry) evictLocked(logger zerolog.Logger) {
	oldestID := ""
	var oldest time.Time
	for id, entry := range r.entries {
		if !entry.evictable() {
			continue
		}
		if oldestID == "" || entry.lastUsed.Before(oldest) {
			oldestID, oldest = id, entry.lastUsed
		}
	}
	if oldestID != "" {
		delete(r.entries, oldestID)
		logger.Debug().Str(log.KeyCartID, oldestID).Msg("registry full, evicted least recently used cart")
	}
}

func (e *Entry) evictable() bool {
	return e.Checkout.Status().State != checkout.StateProcessing
}
