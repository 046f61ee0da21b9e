// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	jobs    JobReader
	queue   QueueDepth
	worker  WorkerStatus
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, jobs JobReader, queue QueueDepth, worker WorkerStatus) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		jobs:    jobs,
		queue:   queue,
		worker:  worker,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	}
	if h.jobs != nil {
		resp["jobs"] = h.jobs.Len()
	}
	if h.queue != nil {
		resp["queueDepth"] = h.queue.Len()
	}
	if h.worker != nil {
		resp["worker"] = h.worker.Stats()
	}
	return c.JSON(http.StatusOK, resp)
}
