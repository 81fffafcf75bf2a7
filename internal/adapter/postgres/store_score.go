package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/StratForge/internal/domain/strategy"
)

const defaultSnapshotLimit = 50

func (s *Store) AppendScoreSnapshot(ctx context.Context, snap *strategy.ScoreSnapshot) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO score_snapshots (strategy_id, coherence_score, risk_score, bmf_score, trigger)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		snap.StrategyID, snap.CoherenceScore, snap.RiskScore, snap.BmfScore, string(snap.Trigger),
	).Scan(&snap.ID, &snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("append score snapshot %s: %w", snap.StrategyID, err)
	}
	return nil
}

// ListScoreSnapshots returns the newest snapshots first.
func (s *Store) ListScoreSnapshots(ctx context.Context, strategyID string, limit int) ([]strategy.ScoreSnapshot, error) {
	if limit <= 0 {
		limit = defaultSnapshotLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, strategy_id, coherence_score, risk_score, bmf_score, trigger, created_at
		 FROM score_snapshots WHERE strategy_id = $1
		 ORDER BY created_at DESC LIMIT $2`, strategyID, limit)
	if err != nil {
		return nil, fmt.Errorf("list score snapshots %s: %w", strategyID, err)
	}
	defer rows.Close()

	var snaps []strategy.ScoreSnapshot
	for rows.Next() {
		var (
			snap    strategy.ScoreSnapshot
			trigger string
		)
		if err := rows.Scan(&snap.ID, &snap.StrategyID, &snap.CoherenceScore, &snap.RiskScore, &snap.BmfScore, &trigger, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan score snapshot: %w", err)
		}
		snap.Trigger = strategy.Trigger(trigger)
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list score snapshots %s: %w", strategyID, err)
	}
	return orEmpty(snaps), nil
}
