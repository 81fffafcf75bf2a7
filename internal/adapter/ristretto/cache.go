// Package ristretto is the in-process L1 level of the schema cache.
package ristretto

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache holds byte values under a total size budget. Values are copied on
// the way in and out so callers can reuse their buffers.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// NewMB creates a cache limited to maxSizeMB megabytes of keys and values.
func NewMB(maxSizeMB int64) (*Cache, error) {
	maxCost := maxSizeMB << 20
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		// Counters track admission frequency; size for ~1 KiB entries.
		NumCounters: max(maxCost>>7, 1<<10),
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}
	return &Cache{c: c}, nil
}

func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	v, ok := c.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

// Set waits for ristretto's write buffer so a following Get sees the value.
// Values the admission policy rejects, or larger than the budget, are not
// cached and no error is reported.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, bytes.Clone(value), int64(len(key)+len(value)), ttl)
	c.c.Wait()
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Close stops ristretto's background goroutines.
func (c *Cache) Close() {
	c.c.Close()
}
