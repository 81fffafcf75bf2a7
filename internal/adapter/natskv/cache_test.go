package natskv

import (
	"context"
	"os"
	"testing"
	"time"

	sfnats "github.com/Strob0t/StratForge/internal/adapter/nats"
	"github.com/Strob0t/StratForge/internal/port/cache/cachetest"
)

func TestEncodeKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"schema:catalog", "schema.catalog"},
		{"schema:ids", "schema.ids"},
		{"strategy:abc-123:scores", "strategy.abc-123.scores"},
		{"with space*wild>", "with_space_wild_"},
		{":leading", "leading"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := EncodeKey(tt.in); got != tt.want {
			t.Errorf("EncodeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCacheContract(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	q, err := sfnats.Connect(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = q.Close() }()

	kv, err := q.KeyValue(ctx, "STRATFORGE_CACHE_TEST", time.Minute)
	if err != nil {
		t.Fatalf("kv: %v", err)
	}
	cachetest.Run(t, New(kv))
}
