// Package resilience guards calls to the content generator.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s state) String() string { return stateNames[s] }

// Breaker opens after maxFailures consecutive failures and rejects calls
// until the cooldown elapses. It then admits a single probe: success closes
// the circuit, failure reopens it for another cooldown. Calls arriving while
// the probe is in flight are rejected.
type Breaker struct {
	maxFailures int
	cooldown    time.Duration
	isFailure   func(error) bool
	now         func() time.Time

	mu       sync.Mutex
	state    state
	failures int
	openedAt time.Time
	probing  bool
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailurePredicate decides which errors count toward opening the circuit.
// Errors it rejects are returned to the caller but leave the breaker state alone.
func WithFailurePredicate(fn func(error) bool) Option {
	return func(b *Breaker) { b.isFailure = fn }
}

// NewBreaker creates a closed breaker. Unless overridden, every error except
// context cancellation counts as a failure.
func NewBreaker(maxFailures int, cooldown time.Duration, opts ...Option) *Breaker {
	b := &Breaker{
		maxFailures: max(maxFailures, 1),
		cooldown:    cooldown,
		isFailure:   func(err error) bool { return !errors.Is(err, context.Canceled) },
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Execute runs fn unless the circuit is open.
func (b *Breaker) Execute(fn func() error) error {
	probe, ok := b.admit()
	if !ok {
		return ErrCircuitOpen
	}
	err := fn()
	b.record(probe, err)
	return err
}

// State reports "closed", "open" or "half-open" for health output. An open
// breaker whose cooldown has passed reports half-open.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateOpen && b.cooledDown() {
		return stateHalfOpen.String()
	}
	return b.state.String()
}

func (b *Breaker) cooledDown() bool {
	return b.now().Sub(b.openedAt) >= b.cooldown
}

// admit decides whether a call may run and whether it is the half-open probe.
func (b *Breaker) admit() (probe, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return false, true
	case stateOpen:
		if !b.cooledDown() {
			return false, false
		}
		b.state = stateHalfOpen
	}
	if b.probing {
		return false, false
	}
	b.probing = true
	return true, true
}

func (b *Breaker) record(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probing = false
	}

	switch {
	case err == nil:
		if b.state != stateClosed {
			slog.Info("generator circuit closed")
		}
		b.state = stateClosed
		b.failures = 0
	case b.isFailure(err):
		b.failures++
		if probe || (b.state == stateClosed && b.failures >= b.maxFailures) {
			b.state = stateOpen
			b.openedAt = b.now()
			slog.Warn("generator circuit opened", "failures", b.failures, "cooldown", b.cooldown, "error", err)
		}
	case probe:
		// Not a failure, but the probe proved nothing; let the next call probe.
	}
}
