// Package store defines the storage interface and implementations.
package store

import (
	"context"

	"github.com/fathomlab/fathom/domain"
)

// Store defines the interface for data persistence.
type Store interface {
	// Run operations
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status domain.RunStatus) error
	UpdateRunStage(ctx context.Context, runID string, stageIndex int) error
	UpdateRunAbort(ctx context.Context, runID string, reason string) error
	UpdateRunCompleted(ctx context.Context, runID string, status domain.RunStatus, errData []byte) error
	FindActiveRun(ctx context.Context, conversationID string) (*domain.Run, error)

	// Event operations
	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error)

	// Checkpoint operations (append-only)
	AppendCheckpoint(ctx context.Context, cp *domain.Checkpoint) error
	GetCheckpoints(ctx context.Context, runID string, kind string) ([]domain.Checkpoint, error)

	// Lifecycle
	Close() error
}
