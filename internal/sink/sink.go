// Package sink serializes a run's engine output into one ordered stream:
// every event is persisted for audit, replayable kinds are checkpointed for
// resume, and an optional relay receives a live push.
package sink

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/fathomlab/fathom/domain"
	"github.com/fathomlab/fathom/internal/adapter/relay"
	"github.com/fathomlab/fathom/internal/registry"
	"github.com/fathomlab/fathom/store"
)

// EventSink is the single ordered outlet of one run. It is safe for the
// engine's single emitting goroutine plus late subscribers; the mutex only
// guards the closed flag.
type EventSink struct {
	runID          string
	conversationID string
	store          store.Store
	reg            *registry.Registry
	relay          *relay.Client

	mu     sync.Mutex
	closed bool
}

// New creates a sink for one run. relayClient may be nil.
func New(run *domain.Run, st store.Store, reg *registry.Registry, relayClient *relay.Client) *EventSink {
	return &EventSink{
		runID:          run.RunID,
		conversationID: run.ConversationID,
		store:          st,
		reg:            reg,
		relay:          relayClient,
	}
}

// Emit serializes one event: persist, checkpoint, push. Emitting after
// final_complete is a logged no-op; nothing may follow the terminal frame.
// Persistence runs on a detached context so a cancelled run still lands its
// terminal events.
func (s *EventSink) Emit(_ context.Context, eventType domain.EventType, payload interface{}) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		log.Printf("WARN: dropped %s event after final_complete on run %s", eventType, s.runID)
		return
	}
	if eventType == domain.EventTypeFinalComplete {
		s.closed = true
	}
	s.mu.Unlock()

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: failed to marshal %s payload: %v", eventType, err)
		return
	}

	event := domain.Event{
		EventID:        "evt_" + uuid.New().String()[:8],
		RunID:          s.runID,
		ConversationID: s.conversationID,
		Ts:             time.Now().UnixMilli(),
		Type:           eventType,
		Payload:        payloadBytes,
	}

	ctx := context.Background()
	if err := s.store.CreateEvent(ctx, &event); err != nil {
		log.Printf("ERROR: failed to record %s event: %v", eventType, err)
	}

	if kind, ok := checkpointKind(eventType); ok {
		eventBytes, err := json.Marshal(event)
		if err != nil {
			log.Printf("ERROR: failed to marshal %s event for checkpoint: %v", eventType, err)
		} else if err := s.reg.Checkpoint(ctx, s.runID, kind, eventBytes); err != nil {
			log.Printf("ERROR: failed to checkpoint %s event: %v", eventType, err)
		}
	}

	if s.relay != nil {
		if err := s.relay.PushEvent(event); err != nil {
			log.Printf("WARN: failed to push %s event to relay: %v", eventType, err)
		}
	}
}

// checkpointKind maps the replayable event types to their checkpoint kind.
// Status traffic is audit-only and not replayed.
func checkpointKind(eventType domain.EventType) (domain.CheckpointKind, bool) {
	switch eventType {
	case domain.EventTypeSearchResults, domain.EventTypeFullDataDict:
		return domain.CheckpointKindSources, true
	case domain.EventTypeChart:
		return domain.CheckpointKindChart, true
	case domain.EventTypeContent:
		return domain.CheckpointKindContent, true
	}
	return "", false
}

// ReplayEvents reconstructs the replayable event stream of a run from its
// checkpoint log, in the order originally emitted.
func ReplayEvents(ctx context.Context, reg *registry.Registry, runID string) ([]domain.Event, error) {
	checkpoints, err := reg.GetCheckpoints(ctx, runID, "")
	if err != nil {
		return nil, err
	}
	var events []domain.Event
	for _, cp := range checkpoints {
		if len(cp.Payload) == 0 {
			// The initial creation checkpoint carries no event.
			continue
		}
		var event domain.Event
		if err := json.Unmarshal(cp.Payload, &event); err != nil {
			log.Printf("WARN: skipping malformed checkpoint seq %d of run %s: %v", cp.Seq, runID, err)
			continue
		}
		events = append(events, event)
	}
	return events, nil
}
