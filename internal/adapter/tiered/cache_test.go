package tiered_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/StratForge/internal/adapter/tiered"
	"github.com/Strob0t/StratForge/internal/port/cache/cachetest"
)

var errNATS = errors.New("nats: connection closed")

// level is an in-memory cache level that counts reads and can be made to fail.
type level struct {
	data   map[string][]byte
	gets   int
	err    error
	delErr error
}

func newLevel(kv ...string) *level {
	l := &level{data: map[string][]byte{}}
	for i := 0; i+1 < len(kv); i += 2 {
		l.data[kv[i]] = []byte(kv[i+1])
	}
	return l
}

func (l *level) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	l.gets++
	if l.err != nil {
		return nil, false, l.err
	}
	v, ok := l.data[key]
	return v, ok, nil
}

func (l *level) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if l.err != nil {
		return l.err
	}
	l.data[key] = value
	return nil
}

func (l *level) Delete(_ context.Context, key string) error {
	if l.delErr != nil {
		return l.delErr
	}
	delete(l.data, key)
	return nil
}

func TestTieredGet(t *testing.T) {
	tests := []struct {
		name       string
		l1, l2     *level
		want       string
		wantFound  bool
		wantL2Gets int
		backfilled bool
	}{
		{"l1 hit", newLevel("schema:catalog", "v1"), newLevel(), "v1", true, 0, false},
		{"l2 hit backfills", newLevel(), newLevel("schema:catalog", "v2"), "v2", true, 1, true},
		{"miss", newLevel(), newLevel(), "", false, 1, false},
		{"l2 down is a miss", newLevel(), &level{data: map[string][]byte{}, err: errNATS}, "", false, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tiered.New(tt.l1, tt.l2, time.Minute)
			data, found, err := c.Get(context.Background(), "schema:catalog")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if found != tt.wantFound || string(data) != tt.want {
				t.Errorf("Get = %q, %v; want %q, %v", data, found, tt.want, tt.wantFound)
			}
			if tt.l2.gets != tt.wantL2Gets {
				t.Errorf("l2 gets = %d, want %d", tt.l2.gets, tt.wantL2Gets)
			}
			if _, ok := tt.l1.data["schema:catalog"]; ok != (tt.backfilled || tt.name == "l1 hit") {
				t.Errorf("l1 holds key = %v", ok)
			}
		})
	}
}

func TestTieredSetSurvivesL2Outage(t *testing.T) {
	l1, l2 := newLevel(), newLevel()
	l2.err = errNATS
	c := tiered.New(l1, l2, time.Minute)

	if err := c.Set(context.Background(), "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if string(l1.data["k"]) != "v" {
		t.Error("l1 not written")
	}
}

func TestTieredDeleteReportsL2Failure(t *testing.T) {
	l1, l2 := newLevel("k", "v"), newLevel("k", "v")
	l2.delErr = errNATS
	c := tiered.New(l1, l2, time.Minute)

	if err := c.Delete(context.Background(), "k"); !errors.Is(err, errNATS) {
		t.Fatalf("Delete = %v, want %v", err, errNATS)
	}
	if _, ok := l1.data["k"]; ok {
		t.Error("l1 entry survived delete")
	}
}

func TestTieredContract(t *testing.T) {
	t.Run("two levels", func(t *testing.T) {
		cachetest.Run(t, tiered.New(newLevel(), newLevel(), time.Minute))
	})
	t.Run("l1 only", func(t *testing.T) {
		cachetest.Run(t, tiered.New(newLevel(), nil, time.Minute))
	})
}
