// Package catalog lists the products of a coordinator from the order
// management API and keeps the transformed catalog in the cache.
package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Alturino/makelocal/internal/api"
	"github.com/Alturino/makelocal/internal/config"
	inErrors "github.com/Alturino/makelocal/internal/errors"
	"github.com/Alturino/makelocal/internal/log"
	"github.com/Alturino/makelocal/internal/otel"
	"github.com/Alturino/makelocal/internal/storage"
	"github.com/Alturino/makelocal/product/pkg/response"
)

const (
	DefaultCacheTTL = 10 * time.Minute
	CacheKeyPrefix  = "makelocal-catalog:"

	endpointProductsByCoordinator = "/products-by-coordinator"
)

type APIClient interface {
	Do(c context.Context, method, endpoint string, body, out any, opts ...api.RequestOption) error
}

type Service struct {
	api           APIClient
	cache         storage.Storage
	coordinatorID string
	ttl           time.Duration
	now           func() time.Time
	group         singleflight.Group
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService serves the catalog of cfg.CoordinatorID. A nil cache disables
// caching.
func NewService(client APIClient, cache storage.Storage, cfg config.Catalog, opts ...Option) *Service {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	svc := &Service{
		api:           client,
		cache:         cache,
		coordinatorID: cfg.CoordinatorID,
		ttl:           ttl,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// FetchProductsByCoordinator asks the API for the raw product list. The id
// is checked before any request is sent.
func (svc *Service) FetchProductsByCoordinator(
	c context.Context,
	coordinatorID string,
) (response.ProductsByCoordinator, error) {
	c, span := otel.Tracer.Start(c, "Service FetchProductsByCoordinator")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Service FetchProductsByCoordinator").
		Str(log.KeyCoordinatorID, coordinatorID).
		Logger()

	if !ValidCoordinatorID(coordinatorID) {
		err := fmt.Errorf("failed validating coordinatorId with error=%w", inErrors.ErrInvalidCoordinatorID)
		inErrors.HandleError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		return response.ProductsByCoordinator{}, err
	}

	logger = logger.With().Str(log.KeyProcess, "fetching products").Logger()
	endpoint := endpointProductsByCoordinator + "?coordinatorId=" + url.QueryEscape(coordinatorID)
	var resp response.ProductsByCoordinator
	if err := svc.api.Do(c, http.MethodGet, endpoint, nil, &resp); err != nil {
		err = fmt.Errorf("failed fetching products by coordinator with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.ProductsByCoordinator{}, err
	}
	logger.Info().Int("products", len(resp.Products)).Int("totalCount", resp.TotalCount).Msg("fetched products")
	return resp, nil
}

// Catalog returns the transformed products of the configured coordinator,
// from the cache when a fresh copy exists. Concurrent misses share one
// request.
func (svc *Service) Catalog(c context.Context) (response.Catalog, error) {
	c, span := otel.Tracer.Start(c, "Service Catalog")
	defer span.End()

	cacheKey := CacheKeyPrefix + svc.coordinatorID
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Service Catalog").
		Str(log.KeyCoordinatorID, svc.coordinatorID).
		Str(log.KeyCacheKey, cacheKey).
		Logger()

	if svc.cache != nil {
		var cached response.Catalog
		found, err := svc.cache.Get(c, cacheKey, &cached)
		if err != nil {
			logger.Warn().Err(err).Msg("failed reading catalog cache")
		}
		if found {
			logger.Debug().Msg("catalog cache hit")
			return cached, nil
		}
	}

	result, err, shared := svc.group.Do(cacheKey, func() (any, error) {
		return svc.refresh(context.WithoutCancel(c), cacheKey)
	})
	if err != nil {
		inErrors.HandleError(err, span)
		return response.Catalog{}, err
	}
	logger.Debug().Bool("shared", shared).Msg("catalog loaded")
	return result.(response.Catalog), nil
}

func (svc *Service) refresh(c context.Context, cacheKey string) (response.Catalog, error) {
	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "Service refresh").Logger()

	resp, err := svc.FetchProductsByCoordinator(c, svc.coordinatorID)
	if err != nil {
		return response.Catalog{}, err
	}
	products := make([]response.Product, 0, len(resp.Products))
	for _, p := range resp.Products {
		products = append(products, TransformProduct(p))
	}
	catalog := response.Catalog{
		CoordinatorID: svc.coordinatorID,
		Products:      products,
		FetchedAt:     svc.now(),
	}

	if svc.cache != nil {
		if err := svc.cache.Set(c, cacheKey, catalog, svc.ttl); err != nil {
			logger.Warn().Err(err).Msg("failed caching catalog")
		}
	}
	return catalog, nil
}

// ValidCoordinatorID accepts only the hyphenated 36 character uuid form.
func ValidCoordinatorID(id string) bool {
	return len(id) == 36 && uuid.Validate(id) == nil
}

func (svc *Service) ProductBySlug(c context.Context, slug string) (response.Product, error) {
	return svc.find(c, func(p response.Product) bool { return p.Slug == slug }, slug)
}

func (svc *Service) ProductByID(c context.Context, id string) (response.Product, error) {
	return svc.find(c, func(p response.Product) bool { return p.ID == id }, id)
}

func (svc *Service) find(c context.Context, match func(response.Product) bool, key string) (response.Product, error) {
	catalog, err := svc.Catalog(c)
	if err != nil {
		return response.Product{}, err
	}
	for _, p := range catalog.Products {
		if match(p) {
			return p, nil
		}
	}
	return response.Product{}, fmt.Errorf("failed finding product=%s with error=%w", key, inErrors.ErrProductNotFound)
}

// Invalidate drops the cached catalog so the next read refetches it.
func (svc *Service) Invalidate(c context.Context) error {
	if svc.cache == nil {
		return nil
	}
	return svc.cache.Remove(c, CacheKeyPrefix+svc.coordinatorID)
}
