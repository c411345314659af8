// Package generator abstracts the content-producing capability behind the
// pipeline: planning, record summarization, and streamed section text.
package generator

import (
	"context"

	"github.com/fathomlab/fathom/domain"
)

// ChunkFunc is called for each text chunk of a streamed section. Returning an
// error stops the stream.
type ChunkFunc func(text string) error

// Generator defines the interface for content generation.
type Generator interface {
	// Plan decomposes a query into an ordered multi-stage research plan.
	Plan(ctx context.Context, query string) (*domain.Plan, error)

	// Summarize produces a bounded-length summary of a record set, used to
	// resolve stage-result placeholders in later-stage task inputs.
	Summarize(ctx context.Context, records []domain.Record, maxChars int) (string, error)

	// Produce streams the text of one section. The chunk sequence is lazy,
	// finite and single-consumption: a failed stream cannot be resumed, only
	// restarted from scratch.
	Produce(ctx context.Context, job domain.SectionJob, records []domain.Record, fn ChunkFunc) error
}

// Ensure implementations satisfy the interface.
var (
	_ Generator = (*Client)(nil)
	_ Generator = (*MockGenerator)(nil)
	_ Generator = (*FallbackGenerator)(nil)
)
