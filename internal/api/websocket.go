package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/snaptext/backend/internal/models"
)

// WebSocket message types for job streams
const (
	MsgTypeSnapshot = "snapshot"
	MsgTypeDone     = "done"
)

// WSJobMessage carries one snapshot of a job
type WSJobMessage struct {
	Type      string     `json:"type"`
	Job       models.Job `json:"job"`
	Timestamp int64      `json:"timestamp"`
}

const (
	defaultStreamInterval = 250 * time.Millisecond
	streamWriteWait       = 10 * time.Second
)

// WebSocketHandler streams job progress to browsers instead of making them poll
type WebSocketHandler struct {
	jobs     JobReader
	upgrader websocket.Upgrader
	interval time.Duration
	logger   *slog.Logger
}

// NewWebSocketHandler creates a new job stream handler. interval is how
// often the registry is checked for changes; zero uses 250ms.
func NewWebSocketHandler(jobs JobReader, interval time.Duration, logger *slog.Logger) *WebSocketHandler {
	if interval <= 0 {
		interval = defaultStreamInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		jobs: jobs,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
		},
		interval: interval,
		logger:   logger,
	}
}

// HandleJobStream sends a snapshot whenever the job changes and closes the
// connection once every file is complete or failed.
func (wsh *WebSocketHandler) HandleJobStream(c echo.Context) error {
	id := c.Param("id")
	if _, ok := wsh.jobs.Version(id); !ok {
		return NewNotFoundError("job", id)
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	job := shortID(id)
	wsh.logger.Debug("job stream opened", "job", job)

	// The client never sends anything we act on; reading only notices close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					wsh.logger.Debug("job stream read error", "job", job, "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(wsh.interval)
	defer ticker.Stop()

	var sent uint64
	first := true
	for {
		version, ok := wsh.jobs.Version(id)
		if ok && (first || version != sent) {
			snapshot, _ := wsh.jobs.Get(id)
			done := snapshot.Done()

			msgType := MsgTypeSnapshot
			if done {
				msgType = MsgTypeDone
			}
			if err := wsh.send(ws, WSJobMessage{Type: msgType, Job: snapshot, Timestamp: time.Now().UnixMilli()}); err != nil {
				wsh.logger.Debug("job stream write failed", "job", job, "error", err)
				return nil
			}
			sent, first = version, false

			if done {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job complete")
				_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(streamWriteWait))
				wsh.logger.Debug("job stream closed", "job", job)
				return nil
			}
		}

		select {
		case <-ticker.C:
		case <-gone:
			return nil
		case <-c.Request().Context().Done():
			return nil
		}
	}
}

func (wsh *WebSocketHandler) send(ws *websocket.Conn, msg WSJobMessage) error {
	_ = ws.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return ws.WriteJSON(msg)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
