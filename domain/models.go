// Package domain defines the core domain models for the research pipeline.
package domain

import (
	"encoding/json"
	"time"
)

// RunStatus represents the lifecycle status of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusAborted   RunStatus = "ABORTED"
	RunStatusError     RunStatus = "ERROR"
)

// IsTerminal reports whether the status is terminal. Terminal statuses are
// sticky: a run never transitions out of one.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusAborted, RunStatusError:
		return true
	}
	return false
}

// EventType represents the wire-level type of an event frame.
type EventType string

const (
	EventTypeStatus        EventType = "status"
	EventTypePlan          EventType = "plan"
	EventTypeSearchResults EventType = "search_results"
	EventTypeFullDataDict  EventType = "full_data_dict"
	EventTypeContent       EventType = "content"
	EventTypeChart         EventType = "chart"
	EventTypeError         EventType = "error"
	EventTypeComplete      EventType = "complete"
	EventTypeFinalComplete EventType = "final_complete"
)

// CheckpointKind identifies what a checkpoint payload reconstructs on resume.
type CheckpointKind string

const (
	CheckpointKindSources CheckpointKind = "sources"
	CheckpointKindChart   CheckpointKind = "chart"
	CheckpointKindContent CheckpointKind = "content"
)

// Run represents one end-to-end execution of the pipeline for a single request.
type Run struct {
	RunID          string          `json:"run_id"`
	ConversationID string          `json:"conversation_id"`
	Query          string          `json:"query"`
	Status         RunStatus       `json:"status"`
	StageIndex     int             `json:"stage_index"`
	AbortRequested bool            `json:"abort_requested"`
	AbortReason    string          `json:"abort_reason,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	EndedAt        *time.Time      `json:"ended_at,omitempty"`
	Error          json.RawMessage `json:"error,omitempty"`
}

// Record is one retrieved item of evidence. Records are immutable once
// produced and are referenced later by their index in the run accumulator.
type Record struct {
	Title      string  `json:"title"`
	Body       string  `json:"body"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
	URL        string  `json:"url,omitempty"`
}

// Event is a trace event persisted for replay and pushed to stream consumers.
type Event struct {
	EventID        string          `json:"event_id"`
	RunID          string          `json:"run_id"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Ts             int64           `json:"ts"` // Unix milliseconds
	Type           EventType       `json:"type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// Checkpoint is one entry of the append-only per-run log used to reconstruct
// the emitted stream after a caller disconnects and reconnects.
type Checkpoint struct {
	RunID   string          `json:"run_id"`
	Kind    CheckpointKind  `json:"kind"`
	Seq     int64           `json:"seq"`
	Ts      int64           `json:"ts"` // Unix milliseconds
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Artifact is a derived side effect constructed during section consumption,
// e.g. a chart built from the records a section cites.
type Artifact struct {
	Kind   string   `json:"kind"`
	Title  string   `json:"title"`
	Labels []string `json:"labels"`
	Values []float64 `json:"values"`
}
