package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/StratForge/internal/domain/strategy"
)

const strategyColumns = `id, owner_id, COALESCE(parent_id::text, ''), name, description, sector, phase,
	coherence_score, interview, version, created_at, updated_at`

// CreateStrategy inserts a strategy and its eight idle pillars in one transaction.
func (s *Store) CreateStrategy(ctx context.Context, req strategy.CreateRequest) (*strategy.Strategy, error) {
	interview, err := json.Marshal(req.Interview.Clone())
	if err != nil {
		return nil, fmt.Errorf("marshal interview: %w", err)
	}

	var st strategy.Strategy
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		st, err = scanStrategy(tx.QueryRow(ctx,
			`INSERT INTO strategies (owner_id, parent_id, name, description, sector, interview)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING `+strategyColumns,
			req.OwnerID, nullIfEmpty(req.ParentID), req.Name, req.Description, req.Sector, interview))
		if err != nil {
			return dbErr(err, "create strategy")
		}

		st.Pillars = make([]strategy.Pillar, 0, strategy.PillarCount)
		for _, t := range strategy.Stages {
			p, err := scanPillar(tx.QueryRow(ctx,
				`INSERT INTO pillars (strategy_id, type) VALUES ($1, $2)
				 RETURNING `+pillarColumns,
				st.ID, string(t)))
			if err != nil {
				return dbErr(err, "create pillar %s", t)
			}
			st.Pillars = append(st.Pillars, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// GetStrategy returns the strategy with its pillars in stage order.
func (s *Store) GetStrategy(ctx context.Context, id string) (*strategy.Strategy, error) {
	st, err := scanStrategy(s.pool.QueryRow(ctx,
		`SELECT `+strategyColumns+` FROM strategies WHERE id = $1`, id))
	if err != nil {
		return nil, dbErr(err, "get strategy %s", id)
	}

	pillars, err := s.ListPillars(ctx, id)
	if err != nil {
		return nil, err
	}
	st.Pillars = pillars
	return &st, nil
}

func (s *Store) UpdateInterviewDataset(ctx context.Context, id string, dataset strategy.InterviewDataset) error {
	data, err := json.Marshal(dataset.Clone())
	if err != nil {
		return fmt.Errorf("marshal interview: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE strategies SET interview = $2, version = version + 1, updated_at = now() WHERE id = $1`,
		id, data)
	return expectRow(tag, err, "update interview %s", id)
}

func (s *Store) UpdateStrategyPhase(ctx context.Context, id string, phase strategy.Phase) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE strategies SET phase = $2, updated_at = now() WHERE id = $1`, id, string(phase))
	return expectRow(tag, err, "update phase %s", id)
}

func (s *Store) UpdateCoherenceScore(ctx context.Context, id string, score int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE strategies SET coherence_score = $2, updated_at = now() WHERE id = $1`, id, score)
	return expectRow(tag, err, "update coherence score %s", id)
}

func scanStrategy(row scannable) (strategy.Strategy, error) {
	var (
		st        strategy.Strategy
		phase     string
		interview []byte
	)
	err := row.Scan(&st.ID, &st.OwnerID, &st.ParentID, &st.Name, &st.Description, &st.Sector, &phase,
		&st.CoherenceScore, &interview, &st.Version, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return st, err
	}
	st.Phase = strategy.Phase(phase)
	st.Interview = strategy.InterviewDataset{}
	if len(interview) > 0 {
		if err := json.Unmarshal(interview, &st.Interview); err != nil {
			return st, fmt.Errorf("unmarshal interview: %w", err)
		}
	}
	return st, nil
}

func sortByStage(pillars []strategy.Pillar) {
	slices.SortFunc(pillars, func(a, b strategy.Pillar) int {
		return a.Type.Index() - b.Type.Index()
	})
}
