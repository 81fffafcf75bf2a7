package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/StratForge/internal/logger"
	"github.com/Strob0t/StratForge/internal/port/messagequeue"
)

// Recomputer publishes a recompute request for a strategy on a fixed subject.
// Budget-tier and widget recomputation are owned by downstream consumers.
type Recomputer struct {
	queue   messagequeue.Queue
	subject string
	trigger string
}

// NewRecomputer creates a Recomputer publishing on subject.
func NewRecomputer(q messagequeue.Queue, subject, trigger string) *Recomputer {
	return &Recomputer{queue: q, subject: subject, trigger: trigger}
}

// Recompute publishes the request. It does not wait for the consumer.
func (r *Recomputer) Recompute(ctx context.Context, strategyID string) error {
	data, err := json.Marshal(messagequeue.RecomputePayload{
		StrategyID: strategyID,
		Trigger:    r.trigger,
		RunID:      logger.RunID(ctx),
	})
	if err != nil {
		return fmt.Errorf("marshal recompute payload: %w", err)
	}
	if err := r.queue.Publish(ctx, r.subject, data); err != nil {
		return fmt.Errorf("recompute %s: %w", r.subject, err)
	}
	return nil
}
