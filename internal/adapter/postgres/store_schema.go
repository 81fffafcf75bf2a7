package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/StratForge/internal/domain/schema"
	"github.com/Strob0t/StratForge/internal/domain/strategy"
)

func (s *Store) ListSchemaVariables(ctx context.Context) ([]schema.Variable, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, label, description, pillar, sort_order
		 FROM schema_variables
		 ORDER BY array_position(ARRAY['A','D','V','E','R','T','I','S'], pillar), sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("list schema variables: %w", err)
	}
	defer rows.Close()

	var vars []schema.Variable
	for rows.Next() {
		var (
			v      schema.Variable
			pillar string
		)
		if err := rows.Scan(&v.ID, &v.Label, &v.Description, &pillar, &v.SortOrder); err != nil {
			return nil, fmt.Errorf("scan schema variable: %w", err)
		}
		v.Pillar = strategy.PillarType(pillar)
		vars = append(vars, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list schema variables: %w", err)
	}
	return orEmpty(vars), nil
}

// ReplaceSchemaVariables swaps the whole catalog in one transaction.
func (s *Store) ReplaceSchemaVariables(ctx context.Context, vars []schema.Variable) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM schema_variables`); err != nil {
			return fmt.Errorf("clear schema variables: %w", err)
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"schema_variables"},
			[]string{"id", "label", "description", "pillar", "sort_order"},
			pgx.CopyFromSlice(len(vars), func(i int) ([]any, error) {
				v := vars[i]
				return []any{v.ID, v.Label, v.Description, string(v.Pillar), v.SortOrder}, nil
			}),
		)
		return dbErr(err, "copy schema variables")
	})
}
