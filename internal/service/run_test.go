package service

import (
	"context"
	"testing"
	"time"

	"github.com/fathomlab/fathom/config"
	"github.com/fathomlab/fathom/domain"
	"github.com/fathomlab/fathom/internal/adapter/chart"
	"github.com/fathomlab/fathom/internal/adapter/generator"
	"github.com/fathomlab/fathom/internal/adapter/relay"
	"github.com/fathomlab/fathom/internal/adapter/search"
	"github.com/fathomlab/fathom/internal/engine"
	"github.com/fathomlab/fathom/internal/registry"
	"github.com/fathomlab/fathom/policy"
	"github.com/fathomlab/fathom/tests/helpers"
)

func newTestService(t *testing.T) (*Service, *registry.Registry) {
	t.Helper()
	db := helpers.NewTestSQLiteStore(t)
	reg := registry.New(db)

	policyEngine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	eng := engine.New(generator.NewMockGenerator(), search.NewMockProvider(), chart.NewBuilder(), policyEngine, reg, engine.Options{
		SearchTimeout:    time.Second,
		SectionQueueSize: 8,
	})
	return New(db, reg, eng, relay.NewClient(""), &config.Config{}), reg
}

func waitForTerminal(t *testing.T, svc *Service, runID string) *domain.Run {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		run, err := svc.GetRun(context.Background(), runID)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if run != nil && run.Status.IsTerminal() {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s did not terminate", runID)
	return nil
}

func TestStartResearchRunsToCompletion(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	resp, err := svc.StartResearch(ctx, domain.ResearchRequest{ConversationID: "c1", Query: "state of fusion power"})
	if err != nil {
		t.Fatalf("StartResearch: %v", err)
	}

	run := waitForTerminal(t, svc, resp.RunID)
	if run.Status != domain.RunStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (%s)", run.Status, run.Error)
	}

	events, err := svc.GetRunEvents(ctx, resp.RunID, 0, nil, 500)
	if err != nil {
		t.Fatalf("GetRunEvents: %v", err)
	}
	finals := 0
	for _, ev := range events {
		if ev.Type == domain.EventTypeFinalComplete {
			finals++
		}
	}
	if finals != 1 {
		t.Fatalf("expected exactly one final_complete, got %d", finals)
	}

	// The checkpoint log replays the delivered stream.
	replayed, err := svc.ReplayRun(ctx, resp.RunID)
	if err != nil {
		t.Fatalf("ReplayRun: %v", err)
	}
	if len(replayed) == 0 {
		t.Fatalf("expected replayable events")
	}
}

func TestStartResearchRejectsSecondActiveRun(t *testing.T) {
	ctx := context.Background()
	svc, reg := newTestService(t)

	if _, err := reg.Create(ctx, "c1", "first"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err := svc.StartResearch(ctx, domain.ResearchRequest{ConversationID: "c1", Query: "second"})
	if err == nil {
		t.Fatalf("expected conflict error")
	}
}

func TestAbortRunValidation(t *testing.T) {
	ctx := context.Background()
	svc, reg := newTestService(t)

	if err := svc.AbortRun(ctx, "run_missing", ""); err == nil {
		t.Fatalf("expected error for unknown run")
	}

	run, err := reg.Create(ctx, "c1", "q")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.AbortRun(ctx, run.RunID, ""); err != nil {
		t.Fatalf("AbortRun: %v", err)
	}
	if !reg.IsAbortRequested(run.RunID) {
		t.Fatalf("abort flag not set")
	}

	// Abort on a terminal run is a no-op, not an error.
	reg.MarkTerminal(ctx, run.RunID, domain.RunStatusAborted, nil)
	if err := svc.AbortRun(ctx, run.RunID, "again"); err != nil {
		t.Fatalf("AbortRun on terminal run: %v", err)
	}
}
