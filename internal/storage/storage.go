// Package storage is the key/value adapter behind cart and session records.
// Values are JSON encoded; failures surface as *errors.StorageError so callers
// can tell a full store from a corrupt record.
package storage

import (
	"context"
	"time"
)

type Storage interface {
	// Get decodes the value under key into v. It reports false when the key
	// is absent.
	Get(c context.Context, key string, v any) (bool, error)
	// Set stores v under key. A ttl of zero keeps the value until removed.
	Set(c context.Context, key string, v any, ttl time.Duration) error
	Remove(c context.Context, key string) error
}
