// handlers_jobs.go - Job polling handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// JobHandlerImpl implements the JobHandler interface
type JobHandlerImpl struct {
	jobs JobReader
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobs JobReader) JobHandler {
	return &JobHandlerImpl{jobs: jobs}
}

// HandleGetJob returns the file results of a job in upload order, or null
// for an id that was never issued.
func (h *JobHandlerImpl) HandleGetJob(c echo.Context) error {
	job, ok := h.jobs.Get(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusOK, nil)
	}
	return c.JSON(http.StatusOK, job.Files)
}

// HandleGetJobMsgpack returns the whole job msgpack-encoded.
func (h *JobHandlerImpl) HandleGetJobMsgpack(c echo.Context) error {
	id := c.Param("id")
	job, ok := h.jobs.Get(id)
	if !ok {
		return NewNotFoundError("job", id)
	}

	data, err := msgpack.Marshal(&job)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}
