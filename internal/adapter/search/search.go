// Package search abstracts the retrieval capability: one atomic fetch per
// task, returning ranked records or an error. No partial or streaming results
// cross this boundary.
package search

import (
	"context"

	"github.com/fathomlab/fathom/domain"
)

// Provider defines the interface for one retrieval backend.
type Provider interface {
	// Fetch executes one task and returns its records. Atomic: it either
	// returns the full list or an error.
	Fetch(ctx context.Context, task domain.TaskSpec) ([]domain.Record, error)
}

// Ensure implementations satisfy the interface.
var (
	_ Provider = (*Client)(nil)
	_ Provider = (*MockProvider)(nil)
)
