package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Strob0t/StratForge/internal/domain"
	"github.com/Strob0t/StratForge/internal/domain/schema"
	"github.com/Strob0t/StratForge/internal/port/cache"
	"github.com/Strob0t/StratForge/internal/port/database"
	"github.com/Strob0t/StratForge/internal/port/schemaprovider"
)

var _ schemaprovider.Provider = (*SchemaService)(nil)

const schemaCacheKey = "schema:variables"

// SchemaService serves the canonical variable catalog from the store through
// a read-through cache.
type SchemaService struct {
	store database.Store
	cache cache.Cache
	ttl   time.Duration
}

// NewSchemaService creates a SchemaService. A nil cache reads the store every time.
func NewSchemaService(store database.Store, c cache.Cache, ttl time.Duration) *SchemaService {
	return &SchemaService{store: store, cache: c, ttl: ttl}
}

// CurrentSchema returns the catalog in stage then sort order.
func (s *SchemaService) CurrentSchema(ctx context.Context) ([]schema.Variable, error) {
	if s.cache != nil {
		data, ok, err := s.cache.Get(ctx, schemaCacheKey)
		if err != nil {
			slog.WarnContext(ctx, "schema cache get failed", "error", err)
		}
		if ok {
			var vars []schema.Variable
			if err := json.Unmarshal(data, &vars); err == nil {
				return vars, nil
			}
			slog.WarnContext(ctx, "schema cache entry corrupt, reloading")
		}
	}

	vars, err := s.store.ListSchemaVariables(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if s.cache != nil {
		if data, err := json.Marshal(vars); err == nil {
			if err := s.cache.Set(ctx, schemaCacheKey, data, s.ttl); err != nil {
				slog.WarnContext(ctx, "schema cache set failed", "error", err)
			}
		}
	}
	return vars, nil
}

// CurrentVariableIDs returns the catalog IDs in catalog order.
func (s *SchemaService) CurrentVariableIDs(ctx context.Context) ([]string, error) {
	vars, err := s.CurrentSchema(ctx)
	if err != nil {
		return nil, err
	}
	return schema.IDs(vars), nil
}

// Import replaces the catalog with the YAML document in data and returns the
// number of variables stored.
func (s *SchemaService) Import(ctx context.Context, data []byte) (int, error) {
	var cat schema.Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return 0, fmt.Errorf("%w: parse schema yaml: %v", domain.ErrValidation, err)
	}
	if err := cat.Validate(); err != nil {
		return 0, err
	}

	if err := s.store.ReplaceSchemaVariables(ctx, cat.Variables); err != nil {
		return 0, fmt.Errorf("replace schema: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, schemaCacheKey); err != nil {
			slog.WarnContext(ctx, "schema cache invalidation failed", "error", err)
		}
	}
	slog.InfoContext(ctx, "schema imported", "variables", len(cat.Variables))
	return len(cat.Variables), nil
}
