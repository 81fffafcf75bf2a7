package messagequeue

import (
	"encoding/json"
	"fmt"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation
// (future-proof for new message types).
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch subject {
	case SubjectScoresRecompute, SubjectWidgetsRecompute, SubjectBudgetRecompute:
		var p RecomputePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.StrategyID == "" {
			return fmt.Errorf("schema validation failed for %s: strategy_id is required", subject)
		}
	case SubjectUpgradeCompleted:
		var p UpgradeCompletedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
	}
	return nil
}
