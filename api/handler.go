// Package api provides the HTTP handlers for the public research API.
package api

import (
	"github.com/labstack/echo/v4"

	"github.com/fathomlab/fathom/config"
	"github.com/fathomlab/fathom/internal/service"
)

// Handler handles HTTP requests for the research API.
type Handler struct {
	service *service.Service
	config  *config.Config
}

// NewHandler creates a new API handler.
func NewHandler(svc *service.Service, cfg *config.Config) *Handler {
	return &Handler{
		service: svc,
		config:  cfg,
	}
}

// RegisterRoutes registers API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Research runs
	e.POST("/v1/research", h.StartResearch)
	e.GET("/v1/runs/:run_id", h.GetRun)
	e.POST("/v1/runs/:run_id/abort", h.AbortRun)

	// Event streaming
	e.GET("/v1/runs/:run_id/stream", h.StreamRun)
	e.GET("/v1/runs/:run_id/events", h.GetRunEvents)
	e.GET("/v1/runs/:run_id/replay", h.ReplayRun)

	// Checkpoints and resume
	e.GET("/v1/runs/:run_id/checkpoints", h.GetCheckpoints)
	e.POST("/v1/resume", h.Resume)
}
