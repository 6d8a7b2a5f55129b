package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	testRedis "github.com/testcontainers/testcontainers-go/modules/redis"

	inErrors "github.com/Alturino/makelocal/internal/errors"
)

func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	c := context.Background()

	redisContainer, err := testRedis.Run(c, "redis:7.4.2-alpine3.21")
	if err != nil {
		t.Fatalf("failed running redis container with error: %s", err)
	}

	redisConnStr, err := redisContainer.ConnectionString(c)
	if err != nil {
		t.Fatalf("failed getting redis connection string with error: %s", err)
	}

	redisOpt, err := redis.ParseURL(redisConnStr)
	if err != nil {
		t.Fatalf("failed parsing redis connection string with error: %s", err)
	}

	client := redis.NewClient(redisOpt)
	if err = client.Ping(c).Err(); err != nil {
		t.Fatalf("failed ping redis client with error: %s", err)
	}

	return client, func() {
		client.Close()
		if err := testcontainers.TerminateContainer(redisContainer); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}
}

func TestRedisStorage(t *testing.T) {
	client, teardown := setupRedis(t)
	defer teardown()

	c := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339Nano}).
		WithContext(context.Background())
	s := NewRedisStorage(client, 64)

	t.Run("given stored value should round trip", func(t *testing.T) {
		require.NoError(t, s.Set(c, "cart:1", record{Name: "a", Count: 1}, time.Minute))

		var r record
		found, err := s.Get(c, "cart:1", &r)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, record{Name: "a", Count: 1}, r)

		ttl, err := client.TTL(c, "cart:1").Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
	})

	t.Run("given absent key should report not found", func(t *testing.T) {
		var r record
		found, err := s.Get(c, "cart:missing", &r)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("given corrupt value should return parse error", func(t *testing.T) {
		require.NoError(t, client.Set(c, "cart:corrupt", "{oops", 0).Err())
		var r record
		_, err := s.Get(c, "cart:corrupt", &r)
		assert.ErrorIs(t, err, inErrors.ErrParse)
	})

	t.Run("given oversized value should return quota exceeded", func(t *testing.T) {
		err := s.Set(c, "cart:big", record{Name: string(make([]byte, 128))}, 0)
		assert.ErrorIs(t, err, inErrors.ErrQuotaExceeded)
	})

	t.Run("given removed key should be gone", func(t *testing.T) {
		require.NoError(t, s.Set(c, "cart:2", record{}, 0))
		require.NoError(t, s.Remove(c, "cart:2"))
		n, err := client.Exists(c, "cart:2").Result()
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("given closed client should return not available", func(t *testing.T) {
		closed := redis.NewClient(&redis.Options{Addr: client.Options().Addr})
		require.NoError(t, closed.Close())
		err := NewRedisStorage(closed, 0).Set(c, "cart:3", record{}, 0)
		assert.ErrorIs(t, err, inErrors.ErrNotAvailable)
	})
}
