// Package store abstracts the shared session store. All cross-connection state
// lives here, accessed only through atomic per-key primitives. Sequences of
// calls are not transactional.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrUnavailable = errors.New("session store unavailable")

// Store is the shared, crash-tolerant key/value store with per-key expiry.
// Each method maps onto one atomic store operation.
type Store interface {
	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key, field string) error

	SAdd(ctx context.Context, key, member string) error
	// SRem reports whether the member was present.
	SRem(ctx context.Context, key, member string) (bool, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	SCard(ctx context.Context, key string) (int64, error)

	// Expire arms or re-arms the key's TTL; false if the key does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, key string) error

	// Scan returns keys matching a glob pattern. Snapshot-consistent per call
	// at best; callers must tolerate staleness.
	Scan(ctx context.Context, pattern string) ([]string, error)

	Close() error
}
