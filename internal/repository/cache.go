package repository

import (
	"context"
	"errors"
	"time"
)

// =============================================================================
// Cache Interface
// =============================================================================

// Cache defines the interface for caching read-model values such as
// per-book availability counts. Implemented in-memory for single-node
// deployments and on Redis for shared deployments. Caching is a pure
// optimization: every cached value can be recomputed from storage, and
// lending operations invalidate the keys they affect.
type Cache interface {
	// Get retrieves a value by key.
	// Returns ErrCacheMiss if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with an optional TTL.
	// If ttl is 0, the value doesn't expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value by key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error
}

// Cache errors.
var (
	// ErrCacheMiss indicates the key was not found in cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable indicates the cache is unavailable.
	ErrCacheUnavailable = errors.New("cache unavailable")
)

// =============================================================================
// Common Cache Keys
// =============================================================================

// CacheKey generates cache keys for common scenarios.
type CacheKey struct{}

// BookAvailability returns the cache key for a book's available-copy
// count.
func (CacheKey) BookAvailability(bookID string) string {
	return "cache:book:available:" + bookID
}

// CopyState returns the cache key for a copy's projected state.
func (CacheKey) CopyState(copyID string) string {
	return "cache:copy:state:" + copyID
}
