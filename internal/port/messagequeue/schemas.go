package messagequeue

// RecomputePayload is the schema for strategy.*.recompute messages.
type RecomputePayload struct {
	StrategyID string `json:"strategy_id"`
	Trigger    string `json:"trigger,omitempty"`
	RunID      string `json:"run_id,omitempty"`
}

// UpgradeCompletedPayload is the schema for strategy.upgrade.completed messages.
type UpgradeCompletedPayload struct {
	StrategyID         string   `json:"strategy_id"`
	RunID              string   `json:"run_id"`
	ActorID            string   `json:"actor_id"`
	PillarsRegenerated []string `json:"pillars_regenerated"`
	Errors             []string `json:"errors"`
	Complete           bool     `json:"complete"`
	DurationMs         int64    `json:"duration_ms"`
}
