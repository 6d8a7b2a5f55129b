// Package photo caches product images fetched from remote urls.
package photo

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	inErrors "github.com/Alturino/makelocal/internal/errors"
	"github.com/Alturino/makelocal/internal/log"
	"github.com/Alturino/makelocal/internal/metrics"
	"github.com/Alturino/makelocal/internal/otel"
	"github.com/Alturino/makelocal/internal/storage"
)

const (
	DefaultTTL     = time.Hour
	CacheKeyPrefix = "makelocal-photo:"

	resultHit   = "hit"
	resultMiss  = "miss"
	resultError = "error"
)

type Fetcher interface {
	Fetch(c context.Context, url string) ([]byte, string, error)
}

type Photo struct {
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// Cache keeps fetched images for ttl. Concurrent loads of one url share a
// single download.
type Cache struct {
	fetcher Fetcher
	store   storage.Storage
	ttl     time.Duration
	metrics *metrics.Metrics
	group   singleflight.Group
}

func NewCache(fetcher Fetcher, store storage.Storage, ttl time.Duration, m *metrics.Metrics) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{fetcher: fetcher, store: store, ttl: ttl, metrics: m}
}

func Key(url string) string {
	sum := blake2b.Sum256([]byte(url))
	return CacheKeyPrefix + hex.EncodeToString(sum[:16])
}

func (pc *Cache) Load(c context.Context, url string) (Photo, error) {
	c, span := otel.Tracer.Start(c, "Cache Load")
	defer span.End()

	key := Key(url)
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Cache Load").
		Str(log.KeyPhotoURL, url).
		Str(log.KeyCacheKey, key).
		Logger()

	var cached Photo
	found, err := pc.store.Get(c, key, &cached)
	if err != nil {
		logger.Warn().Err(err).Msg("failed reading photo cache")
	}
	if found {
		pc.metrics.ObservePhotoLookup(resultHit)
		logger.Trace().Msg("photo cache hit")
		return cached, nil
	}

	result, err, shared := pc.group.Do(url, func() (any, error) {
		return pc.fetch(context.WithoutCancel(c), url, key)
	})
	if err != nil {
		pc.metrics.ObservePhotoLookup(resultError)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Photo{}, err
	}
	pc.metrics.ObservePhotoLookup(resultMiss)
	logger.Debug().Bool("shared", shared).Msg("photo loaded")
	return result.(Photo), nil
}

func (pc *Cache) fetch(c context.Context, url string, key string) (Photo, error) {
	raw, contentType, err := pc.fetcher.Fetch(c, url)
	if err != nil {
		return Photo{}, fmt.Errorf("failed fetching photo with error=%w", err)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return Photo{}, fmt.Errorf("failed loading photo of content type %q with error=%w", contentType, inErrors.ErrNotAnImage)
	}

	p := Photo{ContentType: contentType, Data: raw}
	if err := pc.store.Set(c, key, p, pc.ttl); err != nil {
		zerolog.Ctx(c).Warn().Err(err).Str(log.KeyCacheKey, key).Msg("failed caching photo")
	}
	return p, nil
}
