// Package cachetest holds the behavioral suite every cache.Cache adapter
// must pass.
package cachetest

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/Strob0t/StratForge/internal/port/cache"
)

// Run exercises c through the cache port contract.
func Run(t *testing.T, c cache.Cache) {
	t.Helper()
	ctx := context.Background()

	get := func(t *testing.T, key string) ([]byte, bool) {
		t.Helper()
		val, found, err := c.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get(%q): %v", key, err)
		}
		return val, found
	}

	t.Run("SetAndGet", func(t *testing.T) {
		want := []byte(`[{"id":"brand_purpose","pillar":"A"}]`)
		if err := c.Set(ctx, "schema:variables", want, time.Minute); err != nil {
			t.Fatal(err)
		}
		val, found := get(t, "schema:variables")
		if !found || !bytes.Equal(val, want) {
			t.Fatalf("got %q (found=%v), want %q", val, found, want)
		}
	})

	t.Run("Miss", func(t *testing.T) {
		if _, found := get(t, "schema:never-set"); found {
			t.Fatal("expected miss")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = c.Set(ctx, "idem:deleted", []byte("{}"), time.Minute)
		if err := c.Delete(ctx, "idem:deleted"); err != nil {
			t.Fatal(err)
		}
		if _, found := get(t, "idem:deleted"); found {
			t.Fatal("expected miss after Delete")
		}
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		if err := c.Delete(ctx, "idem:never-existed"); err != nil {
			t.Fatalf("Delete of missing key: %v", err)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		_ = c.Set(ctx, "schema:overwrite", []byte("v1"), time.Minute)
		_ = c.Set(ctx, "schema:overwrite", []byte("v2"), time.Minute)
		if val, found := get(t, "schema:overwrite"); !found || string(val) != "v2" {
			t.Fatalf("got %q (found=%v), want v2", val, found)
		}
	})
}
