// Package schema models the canonical interview-variable catalog and classifies
// stored datasets against it.
package schema

import (
	"fmt"
	"strings"

	"github.com/Strob0t/StratForge/internal/domain"
	"github.com/Strob0t/StratForge/internal/domain/strategy"
)

// Variable is one entry of the canonical catalog.
type Variable struct {
	ID          string              `json:"id" yaml:"id"`
	Label       string              `json:"label" yaml:"label"`
	Description string              `json:"description" yaml:"description"`
	Pillar      strategy.PillarType `json:"pillar" yaml:"pillar"`
	SortOrder   int                 `json:"sort_order" yaml:"sort_order"`
}

// Catalog is the YAML document shape used to import a schema.
type Catalog struct {
	Variables []Variable `yaml:"variables"`
}

// IDs returns the variable IDs in catalog order.
func IDs(vars []Variable) []string {
	ids := make([]string, 0, len(vars))
	for _, v := range vars {
		ids = append(ids, v.ID)
	}
	return ids
}

// ByID indexes vars by ID.
func ByID(vars []Variable) map[string]Variable {
	m := make(map[string]Variable, len(vars))
	for _, v := range vars {
		m[v.ID] = v
	}
	return m
}

// Validate checks a catalog for empty or duplicate IDs and unknown pillars.
func (c *Catalog) Validate() error {
	seen := make(map[string]bool, len(c.Variables))
	for i, v := range c.Variables {
		if strings.TrimSpace(v.ID) == "" {
			return fmt.Errorf("%w: variable %d: id is required", domain.ErrValidation, i)
		}
		if seen[v.ID] {
			return fmt.Errorf("%w: duplicate variable id %q", domain.ErrValidation, v.ID)
		}
		seen[v.ID] = true
		if _, err := strategy.ParsePillarType(string(v.Pillar)); err != nil {
			return fmt.Errorf("variable %s: %w", v.ID, err)
		}
	}
	return nil
}
