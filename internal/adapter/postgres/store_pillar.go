package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/StratForge/internal/domain/content"
	"github.com/Strob0t/StratForge/internal/domain/strategy"
)

const pillarColumns = `id, strategy_id, type, status, content, error_message, version, updated_at`

func (s *Store) ListPillars(ctx context.Context, strategyID string) ([]strategy.Pillar, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pillarColumns+` FROM pillars WHERE strategy_id = $1`, strategyID)
	if err != nil {
		return nil, fmt.Errorf("list pillars %s: %w", strategyID, err)
	}
	defer rows.Close()

	var pillars []strategy.Pillar
	for rows.Next() {
		p, err := scanPillar(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pillar: %w", err)
		}
		pillars = append(pillars, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pillars %s: %w", strategyID, err)
	}
	sortByStage(pillars)
	return orEmpty(pillars), nil
}

func (s *Store) GetPillar(ctx context.Context, strategyID string, t strategy.PillarType) (*strategy.Pillar, error) {
	p, err := scanPillar(s.pool.QueryRow(ctx,
		`SELECT `+pillarColumns+` FROM pillars WHERE strategy_id = $1 AND type = $2`, strategyID, string(t)))
	if err != nil {
		return nil, dbErr(err, "get pillar %s/%s", strategyID, t)
	}
	return &p, nil
}

func (s *Store) UpdatePillarStatus(ctx context.Context, pillarID string, status strategy.PillarStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pillars SET status = $2, error_message = $3, updated_at = now() WHERE id = $1`,
		pillarID, string(status), errMsg)
	return expectRow(tag, err, "update pillar status %s", pillarID)
}

// CommitPillarContent snapshots the current non-null content, then writes the
// new content as complete with version+1. The row lock serializes concurrent
// commits on the same pillar.
func (s *Store) CommitPillarContent(ctx context.Context, pillarID string, content json.RawMessage, actorID string) (*strategy.Pillar, error) {
	var p strategy.Pillar
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var (
			version int
			prior   []byte
		)
		err := tx.QueryRow(ctx,
			`SELECT version, content FROM pillars WHERE id = $1 FOR UPDATE`, pillarID,
		).Scan(&version, &prior)
		if err != nil {
			return dbErr(err, "lock pillar %s", pillarID)
		}

		if !strategy.IsNullContent(prior) {
			if _, err := tx.Exec(ctx,
				`INSERT INTO pillar_versions (pillar_id, version, content, created_by) VALUES ($1, $2, $3, $4)`,
				pillarID, version, prior, actorID); err != nil {
				return dbErr(err, "snapshot pillar %s v%d", pillarID, version)
			}
		}

		p, err = scanPillar(tx.QueryRow(ctx,
			`UPDATE pillars SET content = $2, status = 'complete', error_message = '', version = version + 1, updated_at = now()
			 WHERE id = $1
			 RETURNING `+pillarColumns,
			pillarID, nullJSON(content)))
		return dbErr(err, "write pillar %s", pillarID)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PatchPillarScore rewrites one top-level key of the pillar content without
// bumping its version. Double-encoded objects are stored back unwrapped;
// content that is not an object is left alone.
func (s *Store) PatchPillarScore(ctx context.Context, pillarID, field string, score int) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var raw []byte
		err := tx.QueryRow(ctx, `SELECT content FROM pillars WHERE id = $1 FOR UPDATE`, pillarID).Scan(&raw)
		if err != nil {
			return dbErr(err, "patch pillar score %s", pillarID)
		}
		if strategy.IsNullContent(raw) {
			return nil
		}

		patched, ok, err := content.PatchScore(raw, field, score)
		if err != nil {
			return fmt.Errorf("patch pillar score %s: %w", pillarID, err)
		}
		if !ok {
			return nil
		}
		tag, err := tx.Exec(ctx,
			`UPDATE pillars SET content = $2, updated_at = now() WHERE id = $1`, pillarID, patched)
		return expectRow(tag, err, "patch pillar score %s", pillarID)
	})
}

func (s *Store) ListPillarVersions(ctx context.Context, pillarID string) ([]strategy.PillarVersion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, pillar_id, version, content, created_by, created_at
		 FROM pillar_versions WHERE pillar_id = $1 ORDER BY version DESC`, pillarID)
	if err != nil {
		return nil, fmt.Errorf("list pillar versions %s: %w", pillarID, err)
	}
	defer rows.Close()

	var versions []strategy.PillarVersion
	for rows.Next() {
		var (
			v   strategy.PillarVersion
			raw []byte
		)
		if err := rows.Scan(&v.ID, &v.PillarID, &v.Version, &raw, &v.CreatedBy, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pillar version: %w", err)
		}
		v.Content = raw
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pillar versions %s: %w", pillarID, err)
	}
	return orEmpty(versions), nil
}

func scanPillar(row scannable) (strategy.Pillar, error) {
	var (
		p       strategy.Pillar
		typ     string
		status  string
		content []byte
	)
	err := row.Scan(&p.ID, &p.StrategyID, &typ, &status, &content, &p.ErrorMessage, &p.Version, &p.UpdatedAt)
	p.Type = strategy.PillarType(typ)
	p.Status = strategy.PillarStatus(status)
	p.Content = content
	return p, err
}
