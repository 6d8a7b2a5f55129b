package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	inErrors "github.com/Alturino/makelocal/internal/errors"
	"github.com/Alturino/makelocal/internal/log"
	"github.com/Alturino/makelocal/internal/otel"
)

type RedisStorage struct {
	client        *redis.Client
	maxValueBytes int
}

// NewRedisStorage wraps client. Values larger than maxValueBytes are refused
// with QUOTA_EXCEEDED; zero disables the limit.
func NewRedisStorage(client *redis.Client, maxValueBytes int) *RedisStorage {
	return &RedisStorage{client: client, maxValueBytes: maxValueBytes}
}

func (s *RedisStorage) Get(c context.Context, key string, v any) (bool, error) {
	c, span := otel.Tracer.Start(c, "RedisStorage Get")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "RedisStorage Get").
		Str(log.KeyStorageKey, key).
		Logger()

	raw, err := s.client.Get(c, key).Bytes()
	if errors.Is(err, redis.Nil) {
		logger.Trace().Msg("key not found")
		return false, nil
	}
	if err != nil {
		err = classify(key, err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return false, err
	}

	if err = json.Unmarshal(raw, v); err != nil {
		err = &inErrors.StorageError{
			Code: inErrors.CodeParseError,
			Key:  key,
			Err:  fmt.Errorf("failed to parse stored data with error=%w", err),
		}
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return false, err
	}
	return true, nil
}

func (s *RedisStorage) Set(c context.Context, key string, v any, ttl time.Duration) error {
	c, span := otel.Tracer.Start(c, "RedisStorage Set")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "RedisStorage Set").
		Str(log.KeyStorageKey, key).
		Dur("ttl", ttl).
		Logger()

	raw, err := json.Marshal(v)
	if err != nil {
		err = &inErrors.StorageError{Code: inErrors.CodeStorageUnknown, Key: key, Err: err}
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	if s.maxValueBytes > 0 && len(raw) > s.maxValueBytes {
		err = &inErrors.StorageError{
			Code: inErrors.CodeQuotaExceeded,
			Key:  key,
			Err:  fmt.Errorf("value of %d bytes exceeds limit of %d bytes", len(raw), s.maxValueBytes),
		}
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	// go-redis reads a negative expiration as KEEPTTL.
	if ttl < 0 {
		ttl = 0
	}
	if err = s.client.Set(c, key, raw, ttl).Err(); err != nil {
		err = classify(key, err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Trace().Int("bytes", len(raw)).Msg("stored value")
	return nil
}

func (s *RedisStorage) Remove(c context.Context, key string) error {
	c, span := otel.Tracer.Start(c, "RedisStorage Remove")
	defer span.End()

	if err := s.client.Del(c, key).Err(); err != nil {
		err = classify(key, err)
		inErrors.HandleError(err, span)
		zerolog.Ctx(c).Error().Err(err).Str(log.KeyStorageKey, key).Msg(err.Error())
		return err
	}
	return nil
}

func classify(key string, err error) error {
	code := inErrors.CodeStorageUnknown
	var netErr net.Error
	switch {
	case strings.HasPrefix(err.Error(), "OOM"):
		code = inErrors.CodeQuotaExceeded
	case errors.Is(err, redis.ErrClosed), errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded):
		code = inErrors.CodeNotAvailable
	}
	return &inErrors.StorageError{Code: code, Key: key, Err: err}
}
