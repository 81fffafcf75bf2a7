// Package messagequeue defines the subjects and payloads exchanged with
// downstream recompute consumers, and the queue they travel on.
package messagequeue

import "context"

// Handler processes one delivery. The context carries the request and run
// IDs of the publisher. Returning an error schedules a redelivery until the
// retry budget is spent, after which the message moves to <subject>.dlq.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue publishes and consumes JSON messages. Delivery is at least once.
type Queue interface {
	// Publish sends data on subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe consumes subject with handler until the returned cancel
	// function is called. Payloads failing Validate never reach handler.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain finishes in-flight deliveries, then closes the connection.
	Drain() error

	// Close drops the connection without draining.
	Close() error

	// IsConnected feeds the health check.
	IsConnected() bool
}

// Subjects published by StratForge. All fall under the strategy.> stream.
const (
	SubjectScoresRecompute  = "strategy.scores.recompute"  // recalculate scores of a strategy
	SubjectWidgetsRecompute = "strategy.widgets.recompute" // refresh dashboard widgets
	SubjectBudgetRecompute  = "strategy.budget.recompute"  // re-derive the budget tier after I
	SubjectUpgradeCompleted = "strategy.upgrade.completed" // an upgrade run finished
)
