package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Strob0t/StratForge/internal/port/broadcast"
)

var _ broadcast.Broadcaster = (*Hub)(nil)

// Event type constants for WebSocket messages.
const (
	EventPillarStatus     = "pillar.status"
	EventScoresUpdated    = "scores.updated"
	EventUpgradeStarted   = "upgrade.started"
	EventUpgradeCompleted = "upgrade.completed"
)

// PillarStatusEvent is broadcast on every pillar state transition.
type PillarStatusEvent struct {
	StrategyID string `json:"strategy_id"`
	RunID      string `json:"run_id,omitempty"`
	Pillar     string `json:"pillar"`
	Status     string `json:"status"`
	Version    int    `json:"version,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ScoresUpdatedEvent is broadcast after a score recalculation.
type ScoresUpdatedEvent struct {
	StrategyID     string `json:"strategy_id"`
	CoherenceScore int    `json:"coherence_score"`
	RiskScore      *int   `json:"risk_score"`
	BmfScore       *int   `json:"bmf_score"`
	Trigger        string `json:"trigger"`
}

// UpgradeEvent is broadcast when an upgrade run starts and finishes.
type UpgradeEvent struct {
	StrategyID         string   `json:"strategy_id"`
	RunID              string   `json:"run_id"`
	PillarsRegenerated []string `json:"pillars_regenerated,omitempty"`
	Errors             []string `json:"errors,omitempty"`
	Complete           bool     `json:"complete"`
	DurationMs         int64    `json:"duration_ms,omitempty"`
}

// strategyScoped is implemented by events bound to one strategy.
type strategyScoped interface {
	scope() string
}

func (e PillarStatusEvent) scope() string  { return e.StrategyID }
func (e ScoresUpdatedEvent) scope() string { return e.StrategyID }
func (e UpgradeEvent) scope() string       { return e.StrategyID }

// BroadcastEvent marshals a typed event and broadcasts it. Events that do not
// name a strategy reach every connection.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	var strategyID string
	if s, ok := payload.(strategyScoped); ok {
		strategyID = s.scope()
	}

	h.Broadcast(ctx, strategyID, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
