package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fathomlab/fathom/domain"
	"github.com/fathomlab/fathom/internal/adapter/generator"
	"github.com/fathomlab/fathom/internal/registry"
	"github.com/fathomlab/fathom/tests/helpers"
)

// recordingEmitter captures emitted events in order.
type recordingEmitter struct {
	mu       sync.Mutex
	types    []domain.EventType
	payloads []interface{}
}

func (e *recordingEmitter) Emit(_ context.Context, eventType domain.EventType, payload interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = append(e.types, eventType)
	e.payloads = append(e.payloads, payload)
}

func (e *recordingEmitter) count(typ domain.EventType) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, t := range e.types {
		if t == typ {
			n++
		}
	}
	return n
}

func newTestRun(t *testing.T, reg *registry.Registry) *domain.Run {
	t.Helper()
	run, err := reg.Create(context.Background(), "conv_test", "test query")
	if err != nil {
		t.Fatalf("Create run: %v", err)
	}
	return run
}

func TestSequencerStageBarrierAndPlaceholders(t *testing.T) {
	reg := registry.New(helpers.NewTestSQLiteStore(t))
	run := newTestRun(t, reg)

	var stage0Done int64
	var stage1Query string
	provider := &scriptedProvider{fetch: func(ctx context.Context, task domain.TaskSpec) ([]domain.Record, error) {
		if strings.HasPrefix(task.Query, "seed") {
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt64(&stage0Done, 1)
			return []domain.Record{{Title: "title-" + task.Query, Source: task.Capability, Confidence: 0.8}}, nil
		}
		if atomic.LoadInt64(&stage0Done) != 2 {
			return nil, fmt.Errorf("stage 1 dispatched before stage 0 drained")
		}
		stage1Query = task.Query
		return []domain.Record{{Title: "deep", Source: task.Capability, Confidence: 0.9}}, nil
	}}

	seq := NewSequencer(NewDispatcher(provider, nil, time.Second), generator.NewMockGenerator(), reg, 2000)
	emitter := &recordingEmitter{}

	stages := []domain.Stage{
		{Tasks: []domain.TaskSpec{
			{Capability: "web.search", Query: "seed-a"},
			{Capability: "web.search", Query: "seed-b"},
		}},
		{Tasks: []domain.TaskSpec{
			{Capability: "web.search", Query: "follow up on stage[0].result"},
		}},
	}

	records, err := seq.Run(context.Background(), run, stages, emitter)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	// Placeholder resolved to a summary of stage 0's records, never the
	// literal placeholder text.
	if strings.Contains(stage1Query, "stage[0].result") {
		t.Fatalf("placeholder not substituted: %q", stage1Query)
	}
	if !strings.Contains(stage1Query, "title-seed-a") || !strings.Contains(stage1Query, "title-seed-b") {
		t.Fatalf("summary missing stage 0 titles: %q", stage1Query)
	}

	// Records accumulate in submission order regardless of completion order.
	if records[0].Title != "title-seed-a" || records[1].Title != "title-seed-b" || records[2].Title != "deep" {
		t.Fatalf("unexpected record order: %+v", records)
	}

	if got := emitter.count(domain.EventTypeSearchResults); got != 3 {
		t.Fatalf("expected 3 search_results events, got %d", got)
	}
}

func TestSequencerAllFailedStageContinues(t *testing.T) {
	reg := registry.New(helpers.NewTestSQLiteStore(t))
	run := newTestRun(t, reg)

	provider := &scriptedProvider{fetch: func(ctx context.Context, task domain.TaskSpec) ([]domain.Record, error) {
		if strings.HasPrefix(task.Query, "doomed") {
			return nil, fmt.Errorf("no results")
		}
		return recordsFor(task.Query), nil
	}}

	seq := NewSequencer(NewDispatcher(provider, nil, time.Second), generator.NewMockGenerator(), reg, 2000)
	emitter := &recordingEmitter{}

	stages := []domain.Stage{
		{Tasks: []domain.TaskSpec{
			{Capability: "web.search", Query: "doomed-a"},
			{Capability: "web.search", Query: "doomed-b"},
		}},
		{Tasks: []domain.TaskSpec{{Capability: "web.search", Query: "fine"}}},
	}

	records, err := seq.Run(context.Background(), run, stages, emitter)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record from the surviving stage, got %d", len(records))
	}
	if got := emitter.count(domain.EventTypeStatus); got < 2 {
		t.Fatalf("expected task_failed statuses, got %d status events", got)
	}
}

func TestSequencerAbortAtStageBoundary(t *testing.T) {
	reg := registry.New(helpers.NewTestSQLiteStore(t))
	run := newTestRun(t, reg)

	var calls int64
	provider := &scriptedProvider{fetch: func(ctx context.Context, task domain.TaskSpec) ([]domain.Record, error) {
		atomic.AddInt64(&calls, 1)
		return recordsFor(task.Query), nil
	}}

	seq := NewSequencer(NewDispatcher(provider, nil, time.Second), generator.NewMockGenerator(), reg, 2000)
	reg.RequestAbort(context.Background(), run.RunID, "user changed their mind")

	stages := []domain.Stage{
		{Tasks: []domain.TaskSpec{{Capability: "web.search", Query: "q"}}},
	}
	_, err := seq.Run(context.Background(), run, stages, &recordingEmitter{})
	if err != ErrAborted {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if atomic.LoadInt64(&calls) != 0 {
		t.Fatalf("no task should run after abort, got %d calls", calls)
	}
}

func TestSequencerEmptyStageSkipped(t *testing.T) {
	reg := registry.New(helpers.NewTestSQLiteStore(t))
	run := newTestRun(t, reg)

	provider := &scriptedProvider{fetch: func(ctx context.Context, task domain.TaskSpec) ([]domain.Record, error) {
		return recordsFor(task.Query), nil
	}}
	seq := NewSequencer(NewDispatcher(provider, nil, time.Second), generator.NewMockGenerator(), reg, 2000)
	emitter := &recordingEmitter{}

	stages := []domain.Stage{
		{Tasks: nil},
		{Tasks: []domain.TaskSpec{{Capability: "web.search", Query: "q"}}},
	}
	records, err := seq.Run(context.Background(), run, stages, emitter)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
}
