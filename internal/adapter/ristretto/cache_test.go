package ristretto_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/Strob0t/StratForge/internal/adapter/ristretto"
	"github.com/Strob0t/StratForge/internal/port/cache/cachetest"
)

func newCache(t *testing.T) *ristretto.Cache {
	t.Helper()
	c, err := ristretto.NewMB(1)
	if err != nil {
		t.Fatalf("NewMB: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestCacheContract(t *testing.T) {
	cachetest.Run(t, newCache(t))
}

func TestCacheCopiesValues(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	buf := []byte(`[{"id":"A1"}]`)
	if err := c.Set(ctx, "schema:catalog", buf, time.Minute); err != nil {
		t.Fatal(err)
	}
	buf[3] = 'X'

	got, _, _ := c.Get(ctx, "schema:catalog")
	if string(got) != `[{"id":"A1"}]` {
		t.Fatalf("cached value changed with caller buffer: %s", got)
	}
	got[0] = '{'
	again, _, _ := c.Get(ctx, "schema:catalog")
	if again[0] != '[' {
		t.Fatal("Get returned shared storage")
	}
}

func TestCacheExpires(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(60 * time.Millisecond)
	if _, found, _ := c.Get(ctx, "k"); found {
		t.Error("entry outlived its ttl")
	}
}

func TestCacheSkipsOversizedValues(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	big := bytes.Repeat([]byte("x"), 2<<20)
	if err := c.Set(ctx, "big", big, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, found, _ := c.Get(ctx, "big"); found {
		t.Error("value larger than the budget was cached")
	}
}
