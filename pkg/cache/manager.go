package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the stored entry could not be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// StaleRetention is how long an expired entry with a validator is kept for
// revalidation.
const StaleRetention = time.Hour

// Manager handles caching operations with a Redis backend.
type Manager struct {
	redis *redis.Client
}

// NewManager creates a new cache manager.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{redis: redisClient}
}

// Get retrieves a fresh entry. Returns ErrCacheMiss if the key doesn't exist
// or the entry is expired.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	entry, err := m.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry.IsExpired() {
		return nil, ErrCacheMiss
	}
	return entry, nil
}

// Lookup retrieves an entry even when it is expired, so the caller can
// revalidate it. Returns ErrCacheMiss if the key doesn't exist.
func (m *Manager) Lookup(ctx context.Context, key Key) (*Entry, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		CacheMisses.Inc()
	} else {
		CacheHits.Inc()
	}
	return &entry, nil
}

// Set stores an entry until it expires. Entries with a validator are kept
// StaleRetention longer; expired entries without one are not stored.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if entry.Revalidatable() {
		ttl += StaleRetention
	}
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes an entry.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// UpdateTTL moves the expiry of a stored entry, e.g. after a 304 Not Modified.
func (m *Manager) UpdateTTL(ctx context.Context, key Key, expires time.Time) error {
	entry, err := m.Lookup(ctx, key)
	if err != nil {
		return err
	}
	entry.Expires = expires
	return m.Set(ctx, key, entry)
}
