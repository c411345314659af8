package api

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/fathomlab/fathom/domain"
)

// StartResearch starts a new research run for a conversation.
// POST /v1/research
func (h *Handler) StartResearch(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.ResearchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.ConversationID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "conversation_id is required"})
	}
	if req.Query == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "query is required"})
	}

	resp, err := h.service.StartResearch(ctx, req)
	if err != nil {
		if strings.Contains(err.Error(), "in flight") {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		log.Printf("ERROR: failed to start research: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to start research"})
	}

	return c.JSON(http.StatusOK, resp)
}

// GetRun returns a run snapshot.
// GET /v1/runs/:run_id
func (h *Handler) GetRun(c echo.Context) error {
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

	return c.JSON(http.StatusOK, run)
}

// AbortRun requests a cooperative abort of a run. Aborting a run that has
// already finished is a no-op.
// POST /v1/runs/:run_id/abort
func (h *Handler) AbortRun(c echo.Context) error {
	ctx := c.Request().Context()
	runID := c.Param("run_id")

	var req domain.AbortRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	run, err := h.service.GetRun(ctx, runID)
	if err != nil {
		log.Printf("ERROR: failed to get run: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get run"})
	}
	if run == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}
	if run.Status.IsTerminal() {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"run_id":  runID,
			"status":  run.Status,
			"message": "run already in terminal state",
		})
	}

	if err := h.service.AbortRun(ctx, runID, req.Reason); err != nil {
		log.Printf("ERROR: failed to abort run: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to abort run"})
	}

	log.Printf("INFO: abort requested for run %s", runID)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"run_id":  runID,
		"status":  domain.RunStatusRunning,
		"message": "abort requested",
	})
}

// GetRunEvents returns the persisted events of a run.
// GET /v1/runs/:run_id/events?after_ts=&limit=
func (h *Handler) GetRunEvents(c echo.Context) error {
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

	afterTs := int64(0)
	if raw := c.QueryParam("after_ts"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid after_ts"})
		}
		afterTs = v
	}

	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
		limit = v
	}

	var types []string
	if raw := c.QueryParam("types"); raw != "" {
		types = strings.Split(raw, ",")
	}

	events, err := h.service.GetRunEvents(ctx, runID, afterTs, types, limit)
	if err != nil {
		log.Printf("ERROR: failed to get events: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get events"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"run_id": runID,
		"events": events,
	})
}

// GetCheckpoints returns the checkpoint log of a run, optionally filtered by
// kind.
// GET /v1/runs/:run_id/checkpoints?kind=
func (h *Handler) GetCheckpoints(c echo.Context) error {
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

	kind := c.QueryParam("kind")
	switch kind {
	case "", string(domain.CheckpointKindSources), string(domain.CheckpointKindChart), string(domain.CheckpointKindContent):
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid checkpoint kind"})
	}

	checkpoints, err := h.service.GetCheckpoints(ctx, runID, kind)
	if err != nil {
		log.Printf("ERROR: failed to get checkpoints: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get checkpoints"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"run_id":      runID,
		"checkpoints": checkpoints,
	})
}

// Resume finds the active run of a conversation so a disconnected client can
// reattach to its stream.
// POST /v1/resume
func (h *Handler) Resume(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.ResumeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.ConversationID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "conversation_id is required"})
	}

	run, err := h.service.Resume(ctx, req.ConversationID)
	if err != nil {
		log.Printf("ERROR: failed to resume: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to resume"})
	}
	if run == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no active run for conversation"})
	}

	return c.JSON(http.StatusOK, domain.ResearchResponse{
		RunID:          run.RunID,
		ConversationID: run.ConversationID,
	})
}
