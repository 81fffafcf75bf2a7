package logger

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// recordingHandler collects messages; block, when set, stalls every write.
type recordingHandler struct {
	mu    sync.Mutex
	msgs  []string
	attrs []slog.Attr
	block chan struct{}
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, rec.Message)
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attrs = append(h.attrs, attrs...)
	return h
}

func (h *recordingHandler) WithGroup(string) slog.Handler { return h }

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}

func record(msg string) slog.Record {
	return slog.NewRecord(time.Now(), slog.LevelInfo, msg, 0)
}

func TestAsyncHandlerFlushesOnClose(t *testing.T) {
	inner := &recordingHandler{}
	ah := NewAsyncHandler(inner, 1000, 2)

	const total = 300
	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range total / 3 {
				_ = ah.Handle(context.Background(), record("stage generated"))
			}
		}()
	}
	wg.Wait()
	ah.Close()

	if got := inner.count(); got != total {
		t.Fatalf("records = %d, want %d", got, total)
	}
	if ah.DroppedCount() != 0 {
		t.Errorf("dropped = %d, want 0", ah.DroppedCount())
	}
}

func TestAsyncHandlerDropsWhenFull(t *testing.T) {
	inner := &recordingHandler{block: make(chan struct{})}
	ah := NewAsyncHandler(inner, 1, 1)

	// One record is held by the stalled worker, one fits the buffer.
	for range 10 {
		_ = ah.Handle(context.Background(), record("flood"))
	}
	close(inner.block)
	ah.Close()

	if ah.DroppedCount() < 8 {
		t.Errorf("dropped = %d, want at least 8", ah.DroppedCount())
	}
	if int64(inner.count())+ah.DroppedCount() != 10 {
		t.Errorf("written %d + dropped %d != 10", inner.count(), ah.DroppedCount())
	}
}

func TestAsyncHandlerAfterClose(t *testing.T) {
	inner := &recordingHandler{}
	ah := NewAsyncHandler(inner, 10, 1)
	ah.Close()
	ah.Close()

	if err := ah.Handle(context.Background(), record("late")); err != nil {
		t.Fatalf("Handle after Close: %v", err)
	}
	if inner.count() != 1 {
		t.Errorf("late record not written synchronously")
	}
}

func TestAsyncHandlerDerivedShareSink(t *testing.T) {
	inner := &recordingHandler{}
	ah := NewAsyncHandler(inner, 10, 1)
	child := ah.WithAttrs([]slog.Attr{slog.String("strategy_id", "s1")}).WithGroup("g")

	_ = child.Handle(context.Background(), record("child"))
	ah.Close()

	if inner.count() != 1 {
		t.Fatalf("records = %d, want 1", inner.count())
	}
	if len(inner.attrs) != 1 || inner.attrs[0].Key != "strategy_id" {
		t.Errorf("attrs = %v", inner.attrs)
	}
}
