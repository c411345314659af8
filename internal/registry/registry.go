// Package registry owns the mutable state record of every in-flight run: the
// single writer of run status, the cooperative abort flag, and the append-only
// checkpoint log used for resume after disconnect.
package registry

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/fathomlab/fathom/domain"
	"github.com/fathomlab/fathom/store"
)

// Registry tracks runs in memory and persists every transition through the
// store. Terminal statuses are sticky: once a run leaves RUNNING it never
// transitions again.
type Registry struct {
	mu    sync.Mutex
	runs  map[string]*domain.Run
	seqs  map[string]int64
	store store.Store
}

// New creates a registry backed by the given store.
func New(st store.Store) *Registry {
	return &Registry{
		runs:  make(map[string]*domain.Run),
		seqs:  make(map[string]int64),
		store: st,
	}
}

// Create allocates a new run in RUNNING state and persists it along with an
// initial checkpoint.
func (r *Registry) Create(ctx context.Context, conversationID, query string) (*domain.Run, error) {
	run := &domain.Run{
		RunID:          "run_" + uuid.New().String()[:8],
		ConversationID: conversationID,
		Query:          query,
		Status:         domain.RunStatusRunning,
		StartedAt:      time.Now(),
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.runs[run.RunID] = run
	r.mu.Unlock()

	if err := r.Checkpoint(ctx, run.RunID, domain.CheckpointKindSources, nil); err != nil {
		log.Printf("WARN: failed to persist initial checkpoint for %s: %v", run.RunID, err)
	}
	return run, nil
}

// Get returns a snapshot copy of the run, or nil if unknown.
func (r *Registry) Get(ctx context.Context, runID string) (*domain.Run, error) {
	r.mu.Lock()
	run, ok := r.runs[runID]
	if ok {
		cp := *run
		r.mu.Unlock()
		return &cp, nil
	}
	r.mu.Unlock()
	return r.store.GetRun(ctx, runID)
}

// SetStage records the current stage index of a run. Unknown runs are logged
// and ignored; stage progress never raises to the caller.
func (r *Registry) SetStage(ctx context.Context, runID string, stageIndex int) {
	r.mu.Lock()
	run, ok := r.runs[runID]
	if ok {
		run.StageIndex = stageIndex
	}
	r.mu.Unlock()
	if !ok {
		log.Printf("WARN: SetStage for unknown run %s", runID)
		return
	}
	if err := r.store.UpdateRunStage(ctx, runID, stageIndex); err != nil {
		log.Printf("ERROR: failed to persist stage for %s: %v", runID, err)
	}
}

// MarkTerminal transitions a run to a terminal status. It is a no-op if the
// run is already terminal (sticky) or unknown.
func (r *Registry) MarkTerminal(ctx context.Context, runID string, status domain.RunStatus, errData json.RawMessage) {
	r.mu.Lock()
	run, ok := r.runs[runID]
	if !ok || run.Status.IsTerminal() {
		r.mu.Unlock()
		if !ok {
			log.Printf("WARN: MarkTerminal for unknown run %s", runID)
		}
		return
	}
	now := time.Now()
	run.Status = status
	run.EndedAt = &now
	run.Error = errData
	r.mu.Unlock()

	if err := r.store.UpdateRunCompleted(ctx, runID, status, errData); err != nil {
		log.Printf("ERROR: failed to persist terminal status for %s: %v", runID, err)
	}
}

// RequestAbort sets the cooperative abort flag. It does not force-terminate
// in-flight work; the engine honors the flag at stage and section boundaries.
// Calling it on a terminal run has no effect.
func (r *Registry) RequestAbort(ctx context.Context, runID string, reason string) {
	r.mu.Lock()
	run, ok := r.runs[runID]
	if !ok || run.Status.IsTerminal() {
		r.mu.Unlock()
		if !ok {
			log.Printf("WARN: RequestAbort for unknown run %s", runID)
		}
		return
	}
	run.AbortRequested = true
	run.AbortReason = reason
	r.mu.Unlock()

	if err := r.store.UpdateRunAbort(ctx, runID, reason); err != nil {
		log.Printf("ERROR: failed to persist abort flag for %s: %v", runID, err)
	}
}

// IsAbortRequested reports the abort flag. Polled by the engine between units
// of work, never inside one.
func (r *Registry) IsAbortRequested(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	return ok && run.AbortRequested
}

// AbortReason returns the recorded abort reason, if any.
func (r *Registry) AbortReason(runID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[runID]; ok {
		return run.AbortReason
	}
	return ""
}

// Checkpoint appends one entry to the run's durable log.
func (r *Registry) Checkpoint(ctx context.Context, runID string, kind domain.CheckpointKind, payload json.RawMessage) error {
	r.mu.Lock()
	r.seqs[runID]++
	seq := r.seqs[runID]
	r.mu.Unlock()

	return r.store.AppendCheckpoint(ctx, &domain.Checkpoint{
		RunID:   runID,
		Kind:    kind,
		Seq:     seq,
		Ts:      time.Now().UnixMilli(),
		Payload: payload,
	})
}

// GetCheckpoints returns the checkpoint log in append order, optionally
// filtered by kind.
func (r *Registry) GetCheckpoints(ctx context.Context, runID string, kind string) ([]domain.Checkpoint, error) {
	return r.store.GetCheckpoints(ctx, runID, kind)
}

// FindActiveRun returns the in-flight run of a conversation, or nil.
func (r *Registry) FindActiveRun(ctx context.Context, conversationID string) (*domain.Run, error) {
	r.mu.Lock()
	for _, run := range r.runs {
		if run.ConversationID == conversationID && !run.Status.IsTerminal() {
			cp := *run
			r.mu.Unlock()
			return &cp, nil
		}
	}
	r.mu.Unlock()
	return r.store.FindActiveRun(ctx, conversationID)
}
