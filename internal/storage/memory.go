package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	inErrors "github.com/Alturino/makelocal/internal/errors"
)

type memoryEntry struct {
	raw       []byte
	expiresAt time.Time
}

// MemoryStorage keeps JSON encoded values in process. It backs the service
// when no redis is configured and is what the cart tests run against.
type MemoryStorage struct {
	mu            sync.RWMutex
	entries       map[string]memoryEntry
	maxValueBytes int
	now           func() time.Time
}

func NewMemoryStorage(maxValueBytes int) *MemoryStorage {
	return &MemoryStorage{
		entries:       map[string]memoryEntry{},
		maxValueBytes: maxValueBytes,
		now:           time.Now,
	}
}

func (s *MemoryStorage) Get(_ context.Context, key string, v any) (bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return false, nil
	}
	if err := json.Unmarshal(entry.raw, v); err != nil {
		return false, &inErrors.StorageError{Code: inErrors.CodeParseError, Key: key, Err: err}
	}
	return true, nil
}

func (s *MemoryStorage) Set(_ context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return &inErrors.StorageError{Code: inErrors.CodeStorageUnknown, Key: key, Err: err}
	}
	return s.SetRaw(key, raw, ttl)
}

// SetRaw stores raw bytes without encoding them first.
func (s *MemoryStorage) SetRaw(key string, raw []byte, ttl time.Duration) error {
	if s.maxValueBytes > 0 && len(raw) > s.maxValueBytes {
		return &inErrors.StorageError{
			Code: inErrors.CodeQuotaExceeded,
			Key:  key,
			Err:  fmt.Errorf("value of %d bytes exceeds limit of %d bytes", len(raw), s.maxValueBytes),
		}
	}
	entry := memoryEntry{raw: raw}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStorage) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Has reports whether key holds a value, ignoring expiry.
func (s *MemoryStorage) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[key]
	return ok
}
