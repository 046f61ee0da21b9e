// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/snaptext/backend/internal/models"
	"github.com/snaptext/backend/internal/search"
	"github.com/snaptext/backend/internal/upload"
	"github.com/snaptext/backend/internal/worker"
)

// UploadHandler accepts image batches
type UploadHandler interface {
	HandleUpload(c echo.Context) error
}

// JobHandler serves job state to pollers
type JobHandler interface {
	HandleGetJob(c echo.Context) error
	HandleGetJobMsgpack(c echo.Context) error
}

// JobStreamHandler pushes job snapshots over WebSocket
type JobStreamHandler interface {
	HandleJobStream(c echo.Context) error
}

// SearchHandler queries completed OCR text
type SearchHandler interface {
	HandleSearch(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// Submitter registers and queues an upload batch.
// This allows mocking in tests
type Submitter interface {
	Submit(ctx context.Context, files []upload.File) (string, error)
}

// JobReader is the read side of the job registry
type JobReader interface {
	Get(id string) (models.Job, bool)
	Version(id string) (uint64, bool)
	Len() int
}

// Searcher runs text queries over completed results
type Searcher interface {
	Search(ctx context.Context, q string, limit int) ([]search.Hit, error)
}

// WorkerStatus reports what the OCR worker is doing
type WorkerStatus interface {
	Stats() worker.Stats
}

// QueueDepth reports how many batches are waiting
type QueueDepth interface {
	Len() int
}
