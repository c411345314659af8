package engine

import (
	"context"

	"github.com/fathomlab/fathom/domain"
)

// EventEmitter serializes engine output into the run's ordered event stream.
// Emit never fails upward: delivery problems are the sink's to log, the
// pipeline keeps going.
type EventEmitter interface {
	Emit(ctx context.Context, eventType domain.EventType, payload interface{})
}
