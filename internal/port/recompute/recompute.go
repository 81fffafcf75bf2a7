// Package recompute defines the port for derived-metric recomputations that
// run outside the regeneration pipeline (budget tier, dashboard widgets).
package recompute

import "context"

// Recomputer schedules a recomputation for one strategy.
type Recomputer interface {
	Recompute(ctx context.Context, strategyID string) error
}
