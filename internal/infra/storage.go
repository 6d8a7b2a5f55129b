package infra

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Alturino/makelocal/internal/config"
	"github.com/Alturino/makelocal/internal/log"
	"github.com/Alturino/makelocal/internal/storage"
)

// NewStorage picks redis when the cache is enabled and process memory
// otherwise. The returned close func is never nil.
func NewStorage(c context.Context, cfg config.Cache) (storage.Storage, func() error, error) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "main NewStorage").
		Bool("redis", cfg.Enabled).
		Logger()

	if !cfg.Enabled {
		logger.Info().Msg("cache disabled, keeping state in memory")
		return storage.NewMemoryStorage(cfg.MaxValueBytes), func() error { return nil }, nil
	}

	client, err := NewCacheClient(c, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed initializing cache with error=%w", err)
	}
	logger.Info().Msg("keeping state in redis")
	return storage.NewRedisStorage(client, cfg.MaxValueBytes), client.Close, nil
}
