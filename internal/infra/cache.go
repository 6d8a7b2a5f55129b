package infra

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/Alturino/makelocal/internal/config"
	"github.com/Alturino/makelocal/internal/log"
	"github.com/Alturino/makelocal/internal/otel"
)

var (
	cacheOnce sync.Once
	cache     *redis.Client
	cacheErr  error
)

// NewCacheClient returns the process wide redis client, instrumented for
// tracing and metrics.
func NewCacheClient(c context.Context, cfg config.Cache) (*redis.Client, error) {
	c, span := otel.Tracer.Start(c, "main NewCacheClient")
	defer span.End()

	cacheOnce.Do(func() {
		logger := zerolog.Ctx(c).
			With().
			Str(log.KeyTag, "main NewCacheClient").
			Logger()

		logger = logger.With().Str(log.KeyProcess, "initializing redis client").Logger()
		logger.Info().Msg("initializing redis client")
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Password: cfg.Password,
			DB:       cfg.Database,
		})
		logger.Info().Msg("initialized redis client")

		logger = logger.With().Str(log.KeyProcess, "instrumenting redis").Logger()
		if err := redisotel.InstrumentTracing(client, redisotel.WithAttributes(semconv.DBSystemRedis)); err != nil {
			cacheErr = fmt.Errorf("failed initializing otel redis tracing with error=%w", err)
			logger.Error().Err(cacheErr).Msg(cacheErr.Error())
			return
		}
		if err := redisotel.InstrumentMetrics(client, redisotel.WithAttributes(semconv.DBSystemRedis)); err != nil {
			cacheErr = fmt.Errorf("failed initializing otel redis metric with error=%w", err)
			logger.Error().Err(cacheErr).Msg(cacheErr.Error())
			return
		}
		logger.Info().Msg("instrumented redis")

		logger = logger.With().Str(log.KeyProcess, "pinging connection to redis").Logger()
		if err := client.Ping(c).Err(); err != nil {
			cacheErr = fmt.Errorf("failed to pinging to redis with error=%w", err)
			logger.Error().Err(cacheErr).Msg(cacheErr.Error())
			_ = client.Close()
			return
		}
		logger.Info().Msg("pinged connection to redis")
		cache = client
	})
	return cache, cacheErr
}
