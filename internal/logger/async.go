package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer flushes buffered log output.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// asyncSink is the state shared by an AsyncHandler and its derived handlers.
type asyncSink struct {
	mu      sync.RWMutex
	closed  bool
	queue   chan asyncRecord
	workers sync.WaitGroup
	dropped atomic.Int64
}

type asyncRecord struct {
	handler slog.Handler
	rec     slog.Record
}

// AsyncHandler hands records to a fixed pool of writers so logging never
// blocks the pipeline. When the buffer is full the record is dropped and
// counted. Records logged after Close are written synchronously.
type AsyncHandler struct {
	inner slog.Handler
	sink  *asyncSink
}

// NewAsyncHandler starts workers writers behind a buffer of size records.
func NewAsyncHandler(inner slog.Handler, size, workers int) *AsyncHandler {
	s := &asyncSink{queue: make(chan asyncRecord, size)}
	s.workers.Add(workers)
	for range workers {
		go func() {
			defer s.workers.Done()
			for r := range s.queue {
				_ = r.handler.Handle(context.Background(), r.rec)
			}
		}()
	}
	return &AsyncHandler{inner: inner, sink: s}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *AsyncHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	h.sink.mu.RLock()
	defer h.sink.mu.RUnlock()
	if h.sink.closed {
		return h.inner.Handle(ctx, rec)
	}
	select {
	case h.sink.queue <- asyncRecord{handler: h.inner, rec: rec.Clone()}:
	default:
		h.sink.dropped.Add(1)
	}
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), sink: h.sink}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), sink: h.sink}
}

// DroppedCount returns the number of records dropped on a full buffer.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.sink.dropped.Load()
}

// Close writes out everything buffered. It is safe to call more than once.
func (h *AsyncHandler) Close() {
	h.sink.mu.Lock()
	if h.sink.closed {
		h.sink.mu.Unlock()
		return
	}
	h.sink.closed = true
	close(h.sink.queue)
	h.sink.mu.Unlock()
	h.sink.workers.Wait()
}
