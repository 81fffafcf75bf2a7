// Package tiered layers an in-process cache over a shared remote one.
package tiered

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Strob0t/StratForge/internal/port/cache"
)

// Cache reads L1 first and falls back to L2, copying L2 hits into L1 for
// l1TTL. Concurrent misses on one key share a single L2 read. L2 is
// best-effort for reads and writes: its errors are logged and treated as a
// miss, so a NATS outage degrades to L1 only. A nil L2 runs L1 alone.
type Cache struct {
	l1, l2 cache.Cache
	l1TTL  time.Duration
	reads  singleflight.Group
}

// New creates a tiered cache.
func New(l1, l2 cache.Cache, l1TTL time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1TTL: l1TTL}
}

func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	if data, ok, err = c.l1.Get(ctx, key); err != nil || ok || c.l2 == nil {
		return data, ok, err
	}

	v, _, _ := c.reads.Do(key, func() (any, error) {
		data, ok, err := c.l2.Get(ctx, key)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "l2 cache get failed", "key", key, "error", err)
			return nil, nil
		case !ok:
			return nil, nil
		}
		if err := c.l1.Set(ctx, key, data, c.l1TTL); err != nil {
			slog.WarnContext(ctx, "l1 cache backfill failed", "key", key, "error", err)
		}
		return data, nil
	})
	data, _ = v.([]byte)
	return data, data != nil, nil
}

// Set writes L1 and then L2.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l1.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if c.l2 == nil {
		return nil
	}
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		slog.WarnContext(ctx, "l2 cache set failed", "key", key, "error", err)
	}
	return nil
}

// Delete clears both levels. Unlike Set, an L2 failure is returned: the
// caller is invalidating and other instances may still read the old value.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.l1.Delete(ctx, key); err != nil {
		return err
	}
	if c.l2 == nil {
		return nil
	}
	return c.l2.Delete(ctx, key)
}
