package service

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	sfotel "github.com/Strob0t/StratForge/internal/adapter/otel"
)

// Task is a unit of background work.
type Task func(ctx context.Context) error

// BackgroundError is a failed background task.
type BackgroundError struct {
	Name       string
	StrategyID string
	Err        error
}

// errItem carries either a failure or a flush marker through the error channel.
type errItem struct {
	failure *BackgroundError
	ack     chan struct{}
}

// Dispatcher runs fire-and-forget tasks detached from the submitting request.
// Concurrency is bounded by a weighted semaphore. Failures go to an error
// channel drained by a single goroutine that logs them.
type Dispatcher struct {
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	errs    chan errItem
	done    chan struct{}
	metrics *sfotel.Metrics

	mu       sync.Mutex
	observer func(BackgroundError)
	closed   bool
}

// NewDispatcher creates a Dispatcher running at most workers tasks at once.
func NewDispatcher(workers int, metrics *sfotel.Metrics) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{
		sem:     semaphore.NewWeighted(int64(workers)),
		errs:    make(chan errItem, 64),
		done:    make(chan struct{}),
		metrics: metrics,
	}
	go d.drain()
	return d
}

// OnError registers fn to be called for every failure after it is logged.
func (d *Dispatcher) OnError(fn func(BackgroundError)) {
	d.mu.Lock()
	d.observer = fn
	d.mu.Unlock()
}

// Submit starts fn in the background. The task context keeps ctx's values
// but not its cancellation. After Close the task is dropped and logged.
func (d *Dispatcher) Submit(ctx context.Context, name, strategyID string, fn Task) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		slog.WarnContext(ctx, "background task dropped after shutdown", "task", name, "strategy_id", strategyID)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	bg := context.WithoutCancel(ctx)
	go func() {
		defer d.wg.Done()
		if err := d.sem.Acquire(bg, 1); err != nil {
			d.errs <- errItem{failure: &BackgroundError{Name: name, StrategyID: strategyID, Err: err}}
			return
		}
		defer d.sem.Release(1)

		if err := fn(bg); err != nil {
			d.errs <- errItem{failure: &BackgroundError{Name: name, StrategyID: strategyID, Err: err}}
		}
	}()
}

// Wait blocks until every submitted task has finished and its failure, if
// any, has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return
	}
	ack := make(chan struct{})
	d.errs <- errItem{ack: ack}
	<-ack
}

// Close waits for pending tasks and stops the drain goroutine. Later calls
// are no-ops.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
	close(d.errs)
	<-d.done
}

func (d *Dispatcher) drain() {
	defer close(d.done)
	for item := range d.errs {
		if item.ack != nil {
			close(item.ack)
			continue
		}
		f := *item.failure
		slog.Error("background task failed", "task", f.Name, "strategy_id", f.StrategyID, "error", f.Err)
		if d.metrics != nil {
			d.metrics.BackgroundFailures.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("task", f.Name)))
		}
		d.mu.Lock()
		observer := d.observer
		d.mu.Unlock()
		if observer != nil {
			observer(f)
		}
	}
}
