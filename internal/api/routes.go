// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Intake        Submitter
	Jobs          JobReader
	Queue         QueueDepth
	Worker        WorkerStatus
	Search        Searcher // nil when the index is disabled
	PublicBaseURL string
	Version       string
	// StreamInterval is how often WebSocket streams check for changes.
	StreamInterval time.Duration
	Logger         *slog.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Upload    UploadHandler
	Jobs      JobHandler
	JobStream JobStreamHandler
	Search    SearchHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.Jobs, deps.Queue, deps.Worker),
		Upload:    NewUploadHandler(deps.Intake, deps.PublicBaseURL, logger),
		Jobs:      NewJobHandler(deps.Jobs),
		JobStream: NewWebSocketHandler(deps.Jobs, deps.StreamInterval, logger),
		Search:    NewSearchHandler(deps.Search),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Submission
	e.POST("/upload", handlers.Upload.HandleUpload)

	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Job polling
	apiGroup.GET("/jobs/:id", handlers.Jobs.HandleGetJob)
	apiGroup.GET("/jobs/:id/msgpack", handlers.Jobs.HandleGetJobMsgpack)

	// WebSocket endpoint
	apiGroup.GET("/ws/jobs/:id", handlers.JobStream.HandleJobStream)

	// Result search
	apiGroup.GET("/search", handlers.Search.HandleSearch)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, logger *slog.Logger, showErrorDetails bool) {
	e.HTTPErrorHandler = NewErrorHandler(logger, showErrorDetails)
}
