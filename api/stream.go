package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fathomlab/fathom/domain"
)

// StreamRun streams the events of a run via SSE.
// GET /v1/runs/:run_id/stream
//
// The stream starts from the beginning of the run (or from after_ts when
// given), so a reconnecting client replays what it missed and then keeps
// receiving live events until the run reaches a terminal state.
func (h *Handler) StreamRun(c echo.Context) error {
	ctx := c.Request().Context()
	runID := c.Param("run_id")

	run, err := h.service.GetRun(ctx, runID)
	if err != nil {
		log.Printf("ERROR: failed to get run: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get run"})
	}
	if run == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}

	lastTs := int64(0)
	if raw := c.QueryParam("after_ts"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid after_ts"})
		}
		lastTs = v
	}

	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	if flusher, ok := c.Response().Writer.(http.Flusher); ok {
		flusher.Flush()
	}

	pollInterval := 100 * time.Millisecond
	maxDuration := 10 * time.Minute

	deadline := time.Now().Add(maxDuration)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	sawFinal := false

	for {
		select {
		case <-ctx.Done():
			// Client disconnected
			return nil

		case <-ticker.C:
			if time.Now().After(deadline) {
				log.Printf("INFO: event stream for run %s exceeded max duration", runID)
				return nil
			}

			events, err := h.service.GetRunEvents(ctx, runID, lastTs, nil, 200)
			if err != nil {
				log.Printf("ERROR: failed to get events: %v", err)
				continue
			}

			for _, event := range events {
				if err := h.sendSSEEvent(c, event); err != nil {
					log.Printf("ERROR: failed to send SSE event: %v", err)
					return err
				}
				if event.Ts > lastTs {
					lastTs = event.Ts
				}
				if event.Type == domain.EventTypeFinalComplete {
					sawFinal = true
				}
			}

			// Close only after the final frame has been delivered, not as
			// soon as the run flips terminal.
			if sawFinal {
				log.Printf("INFO: run %s stream complete", runID)
				return nil
			}
		}
	}
}

// ReplayRun returns the replayable event stream of a run reconstructed from
// its checkpoint log.
// GET /v1/runs/:run_id/replay
func (h *Handler) ReplayRun(c echo.Context) error {
	ctx := c.Request().Context()
	runID := c.Param("run_id")

	run, err := h.service.GetRun(ctx, runID)
	if err != nil {
		log.Printf("ERROR: failed to get run: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get run"})
	}
	if run == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}

	events, err := h.service.ReplayRun(ctx, runID)
	if err != nil {
		log.Printf("ERROR: failed to replay run: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to replay run"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"run_id": runID,
		"events": events,
	})
}

// sendSSEEvent sends a single event in SSE format.
func (h *Handler) sendSSEEvent(c echo.Context, event domain.Event) error {
	// Format: event: <event_type>\ndata: <json>\n\n
	data, err := json.Marshal(map[string]interface{}{
		"event_id":        event.EventID,
		"run_id":          event.RunID,
		"conversation_id": event.ConversationID,
		"ts":              event.Ts,
		"type":            event.Type,
		"payload":         json.RawMessage(event.Payload),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(c.Response().Writer, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Response().Writer, "data: %s\n\n", data); err != nil {
		return err
	}

	if flusher, ok := c.Response().Writer.(http.Flusher); ok {
		flusher.Flush()
	}

	return nil
}
