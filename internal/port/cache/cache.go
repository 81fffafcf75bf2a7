// Package cache defines the byte cache used for read-through lookups such
// as the schema catalog and idempotent replays.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values by key. A miss is (nil, false, nil); errors
// mean the backend could not answer, not that the key is absent.
// Implementations may ignore ttl when expiry is configured elsewhere, as
// the JetStream KV backend does at bucket level.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
