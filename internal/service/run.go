package service

import (
	"context"
	"fmt"
	"log"

	"github.com/fathomlab/fathom/domain"
	"github.com/fathomlab/fathom/internal/sink"
)

// StartResearch validates the request, registers a run and launches the
// pipeline in the background. One conversation carries at most one in-flight
// run.
func (s *Service) StartResearch(ctx context.Context, req domain.ResearchRequest) (*domain.ResearchResponse, error) {
	if req.ConversationID == "" {
		return nil, fmt.Errorf("conversation_id is required")
	}
	if req.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	active, err := s.registry.FindActiveRun(ctx, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active runs: %w", err)
	}
	if active != nil {
		return nil, fmt.Errorf("conversation %s already has run %s in flight", req.ConversationID, active.RunID)
	}

	run, err := s.registry.Create(ctx, req.ConversationID, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	log.Printf("INFO: run %s started for conversation %s", run.RunID, run.ConversationID)

	// The run outlives the HTTP request that started it.
	eventSink := sink.New(run, s.store, s.registry, s.relayClient)
	go s.engine.Execute(context.Background(), run, eventSink)

	return &domain.ResearchResponse{RunID: run.RunID, ConversationID: run.ConversationID}, nil
}

// AbortRun sets the cooperative abort flag. Aborting a terminal run is a
// no-op; aborting an unknown run is an error.
func (s *Service) AbortRun(ctx context.Context, runID, reason string) error {
	run, err := s.registry.Get(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run not found")
	}
	if run.Status.IsTerminal() {
		return nil
	}
	if reason == "" {
		reason = "aborted by user"
	}
	s.registry.RequestAbort(ctx, runID, reason)
	return nil
}

// GetRun returns a run snapshot.
func (s *Service) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := s.registry.Get(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetRunEvents returns the persisted event stream of a run.
func (s *Service) GetRunEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	events, err := s.store.GetEvents(ctx, runID, afterTs, types, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get run events: %w", err)
	}
	return events, nil
}

// GetCheckpoints returns the checkpoint log of a run.
func (s *Service) GetCheckpoints(ctx context.Context, runID, kind string) ([]domain.Checkpoint, error) {
	checkpoints, err := s.registry.GetCheckpoints(ctx, runID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoints: %w", err)
	}
	return checkpoints, nil
}

// ReplayRun reconstructs the replayable event stream of a run from its
// checkpoint log.
func (s *Service) ReplayRun(ctx context.Context, runID string) ([]domain.Event, error) {
	return sink.ReplayEvents(ctx, s.registry, runID)
}

// Resume finds the active run of a conversation for reconnect-and-replay.
func (s *Service) Resume(ctx context.Context, conversationID string) (*domain.Run, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation_id is required")
	}
	run, err := s.registry.FindActiveRun(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to find active run: %w", err)
	}
	return run, nil
}
