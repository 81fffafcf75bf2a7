// Package schemaprovider defines the port for the canonical variable catalog.
package schemaprovider

import (
	"context"

	"github.com/Strob0t/StratForge/internal/domain/schema"
)

// Provider exposes the current interview-variable schema.
type Provider interface {
	CurrentVariableIDs(ctx context.Context) ([]string, error)
	CurrentSchema(ctx context.Context) ([]schema.Variable, error)
}
