package generator

import (
	"context"
	"log"

	"github.com/fathomlab/fathom/domain"
)

// FallbackGenerator tries a primary generator and falls back to a secondary
// on failure. The chain is opaque to the engine: it either yields output or
// raises a terminal error.
type FallbackGenerator struct {
	primary   Generator
	secondary Generator
}

// NewFallbackGenerator wraps a primary and secondary generator. Secondary may
// be nil, in which case failures surface directly.
func NewFallbackGenerator(primary, secondary Generator) *FallbackGenerator {
	return &FallbackGenerator{primary: primary, secondary: secondary}
}

func (g *FallbackGenerator) Plan(ctx context.Context, query string) (*domain.Plan, error) {
	plan, err := g.primary.Plan(ctx, query)
	if err == nil || g.secondary == nil || ctx.Err() != nil {
		return plan, err
	}
	log.Printf("WARN: primary generator plan failed, trying fallback: %v", err)
	return g.secondary.Plan(ctx, query)
}

func (g *FallbackGenerator) Summarize(ctx context.Context, records []domain.Record, maxChars int) (string, error) {
	summary, err := g.primary.Summarize(ctx, records, maxChars)
	if err == nil || g.secondary == nil || ctx.Err() != nil {
		return summary, err
	}
	log.Printf("WARN: primary generator summarize failed, trying fallback: %v", err)
	return g.secondary.Summarize(ctx, records, maxChars)
}

// Produce falls back only if the primary failed before emitting any chunk.
// A section stream is single-consumption: once text has been handed to the
// caller, a restart would duplicate it, so a mid-stream failure is terminal.
func (g *FallbackGenerator) Produce(ctx context.Context, job domain.SectionJob, records []domain.Record, fn ChunkFunc) error {
	emitted := false
	err := g.primary.Produce(ctx, job, records, func(text string) error {
		emitted = true
		return fn(text)
	})
	if err == nil || emitted || g.secondary == nil || ctx.Err() != nil {
		return err
	}
	log.Printf("WARN: primary generator failed before first chunk of section %d, trying fallback: %v", job.Index, err)
	return g.secondary.Produce(ctx, job, records, fn)
}
