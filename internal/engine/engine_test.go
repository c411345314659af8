package engine

import (
	"context"
	"testing"
	"time"

	"github.com/fathomlab/fathom/domain"
	"github.com/fathomlab/fathom/internal/adapter/chart"
	"github.com/fathomlab/fathom/internal/adapter/generator"
	"github.com/fathomlab/fathom/internal/adapter/search"
	"github.com/fathomlab/fathom/internal/registry"
	"github.com/fathomlab/fathom/policy"
	"github.com/fathomlab/fathom/tests/helpers"
)

func newTestEngine(t *testing.T, gen generator.Generator, charts chart.Builder) (*Engine, *registry.Registry) {
	t.Helper()
	reg := registry.New(helpers.NewTestSQLiteStore(t))
	policyEngine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	eng := New(gen, search.NewMockProvider(), charts, policyEngine, reg, Options{
		SearchTimeout:     time.Second,
		SectionQueueSize:  8,
		AbortPollInterval: 10 * time.Millisecond,
	})
	return eng, reg
}

func TestExecuteHappyPathEventSequence(t *testing.T) {
	eng, reg := newTestEngine(t, generator.NewMockGenerator(), chart.NewBuilder())
	run := newTestRun(t, reg)
	emitter := &recordingEmitter{}

	eng.Execute(context.Background(), run, emitter)

	if got := emitter.count(domain.EventTypeFinalComplete); got != 1 {
		t.Fatalf("expected exactly one final_complete, got %d", got)
	}
	if last := emitter.types[len(emitter.types)-1]; last != domain.EventTypeFinalComplete {
		t.Fatalf("final_complete must be last, got %s", last)
	}
	if got := emitter.count(domain.EventTypeComplete); got != 1 {
		t.Fatalf("expected one complete event, got %d", got)
	}
	if got := emitter.count(domain.EventTypePlan); got != 1 {
		t.Fatalf("expected one plan event, got %d", got)
	}
	// Two stage-0 tasks plus one stage-1 task, each with results.
	if got := emitter.count(domain.EventTypeSearchResults); got != 3 {
		t.Fatalf("expected 3 search_results events, got %d", got)
	}
	if got := emitter.count(domain.EventTypeFullDataDict); got != 1 {
		t.Fatalf("expected one full_data_dict event, got %d", got)
	}
	// Section 0 of the mock plan embeds the chart marker.
	if got := emitter.count(domain.EventTypeChart); got != 1 {
		t.Fatalf("expected one chart event, got %d", got)
	}
	if got := emitter.count(domain.EventTypeContent); got == 0 {
		t.Fatalf("expected content events")
	}

	// Ordering: plan precedes search results, full_data_dict precedes content.
	index := func(typ domain.EventType) int {
		for i, et := range emitter.types {
			if et == typ {
				return i
			}
		}
		return -1
	}
	if !(index(domain.EventTypePlan) < index(domain.EventTypeSearchResults)) {
		t.Fatalf("plan must precede search results")
	}
	if !(index(domain.EventTypeFullDataDict) < index(domain.EventTypeContent)) {
		t.Fatalf("full_data_dict must precede content")
	}

	got, err := reg.Get(context.Background(), run.RunID)
	if err != nil {
		t.Fatalf("Get run: %v", err)
	}
	if got.Status != domain.RunStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", got.Status)
	}
	if got.EndedAt == nil {
		t.Fatalf("expected ended_at set")
	}
}

func TestExecuteAbortedRunEndsWithFinalComplete(t *testing.T) {
	eng, reg := newTestEngine(t, generator.NewMockGenerator(), chart.NewBuilder())
	run := newTestRun(t, reg)
	emitter := &recordingEmitter{}

	reg.RequestAbort(context.Background(), run.RunID, "user aborted")
	eng.Execute(context.Background(), run, emitter)

	if got := emitter.count(domain.EventTypeFinalComplete); got != 1 {
		t.Fatalf("expected exactly one final_complete, got %d", got)
	}
	if got := emitter.count(domain.EventTypeComplete); got != 0 {
		t.Fatalf("aborted run must not emit complete, got %d", got)
	}

	got, err := reg.Get(context.Background(), run.RunID)
	if err != nil {
		t.Fatalf("Get run: %v", err)
	}
	if got.Status != domain.RunStatusAborted {
		t.Fatalf("expected ABORTED, got %s", got.Status)
	}
}

// panicBuilder blows up on every chart request.
type panicBuilder struct{}

func (panicBuilder) Build(records []domain.Record, sectionText string) (*domain.Artifact, error) {
	panic("chart renderer crashed")
}

func TestExecutePanicStillEmitsFinalComplete(t *testing.T) {
	eng, reg := newTestEngine(t, generator.NewMockGenerator(), panicBuilder{})
	run := newTestRun(t, reg)
	emitter := &recordingEmitter{}

	eng.Execute(context.Background(), run, emitter)

	if got := emitter.count(domain.EventTypeFinalComplete); got != 1 {
		t.Fatalf("expected exactly one final_complete, got %d", got)
	}
	if got := emitter.count(domain.EventTypeError); got != 1 {
		t.Fatalf("expected one error event, got %d", got)
	}

	got, err := reg.Get(context.Background(), run.RunID)
	if err != nil {
		t.Fatalf("Get run: %v", err)
	}
	if got.Status != domain.RunStatusError {
		t.Fatalf("expected ERROR, got %s", got.Status)
	}
}

// badPlanGenerator returns an invalid plan so the engine must degrade.
type badPlanGenerator struct {
	*generator.MockGenerator
}

func (g *badPlanGenerator) Plan(ctx context.Context, query string) (*domain.Plan, error) {
	return &domain.Plan{}, nil
}

func TestExecuteDegradesToFallbackPlan(t *testing.T) {
	eng, reg := newTestEngine(t, &badPlanGenerator{generator.NewMockGenerator()}, chart.NewBuilder())
	run := newTestRun(t, reg)
	emitter := &recordingEmitter{}

	eng.Execute(context.Background(), run, emitter)

	if got := emitter.count(domain.EventTypeFinalComplete); got != 1 {
		t.Fatalf("expected exactly one final_complete, got %d", got)
	}
	// Fallback plan runs one stage with one task.
	if got := emitter.count(domain.EventTypeSearchResults); got != 1 {
		t.Fatalf("expected 1 search_results event, got %d", got)
	}

	got, err := reg.Get(context.Background(), run.RunID)
	if err != nil {
		t.Fatalf("Get run: %v", err)
	}
	if got.Status != domain.RunStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", got.Status)
	}
}
