package postgres

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Strob0t/StratForge/internal/domain"
	"github.com/Strob0t/StratForge/internal/domain/strategy"
)

// SQLSTATE codes mapped by dbErr.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// scannable is satisfied by pgx.Row and pgx.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// nullIfEmpty maps "" to NULL for optional UUID columns.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullJSON stores absent or JSON-null content as SQL NULL rather than the
// jsonb literal null.
func nullJSON(raw json.RawMessage) any {
	if strategy.IsNullContent(raw) {
		return nil
	}
	return []byte(raw)
}

// orEmpty keeps list endpoints rendering [] instead of null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// dbErr annotates err with the operation and maps Postgres outcomes onto
// domain sentinels: no rows and foreign key violations become ErrNotFound,
// unique violations ErrConflict. A nil err stays nil.
func dbErr(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	op := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, domain.ErrConflict)
		case codeForeignKeyViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, domain.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// expectRow turns an Exec that touched no row into ErrNotFound.
func expectRow(tag pgconn.CommandTag, err error, format string, args ...any) error {
	if err != nil {
		return dbErr(err, format, args...)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), domain.ErrNotFound)
	}
	return nil
}
