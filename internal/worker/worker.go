// Package worker drains the batch queue through the OCR engine, one batch
// and one file at a time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/snaptext/backend/internal/jobs"
	"github.com/snaptext/backend/internal/models"
	"github.com/snaptext/backend/internal/ocr"
	"github.com/snaptext/backend/internal/search"
)

// State is the worker's position in its idle/processing cycle.
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
)

// FailurePolicy decides what happens to the rest of a batch when OCR of
// one file fails.
type FailurePolicy string

const (
	// ContinueOnFailure marks the file failed and moves on.
	ContinueOnFailure FailurePolicy = "continue"
	// AbortOnFailure stops the batch; remaining files stay pending.
	AbortOnFailure FailurePolicy = "abort"
)

// ParseFailurePolicy parses a configured policy name.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case ContinueOnFailure, "":
		return ContinueOnFailure, nil
	case AbortOnFailure:
		return AbortOnFailure, nil
	}
	return "", fmt.Errorf("unknown failure policy %q", s)
}

// Indexer receives the text of every completed file.
type Indexer interface {
	Add(ctx context.Context, e search.Entry) error
}

// Stats is a point-in-time view of the worker.
type Stats struct {
	State          State  `json:"state"`
	CurrentJob     string `json:"currentJob,omitempty"`
	BatchesDone    int64  `json:"batchesDone"`
	FilesCompleted int64  `json:"filesCompleted"`
	FilesFailed    int64  `json:"filesFailed"`
}

// Worker is the single consumer of the queue and the only writer of file
// results after submission.
type Worker struct {
	queue    *jobs.Queue
	registry *jobs.Registry
	engine   ocr.Engine
	lang     string
	policy   FailurePolicy
	indexer  Indexer
	logger   *slog.Logger

	mu         sync.RWMutex
	state      State
	currentJob string

	batches   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	running atomic.Bool
}

// Option configures a Worker.
type Option func(*Worker)

// WithLanguage sets the OCR language passed to the engine.
func WithLanguage(lang string) Option {
	return func(w *Worker) {
		if lang != "" {
			w.lang = lang
		}
	}
}

// WithFailurePolicy sets the per-file failure handling.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(w *Worker) {
		if p != "" {
			w.policy = p
		}
	}
}

// WithIndexer feeds completed text into a search index.
func WithIndexer(ix Indexer) Option {
	return func(w *Worker) { w.indexer = ix }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a worker. The engine is owned by the worker from here on and
// is closed when Run returns.
func New(queue *jobs.Queue, registry *jobs.Registry, engine ocr.Engine, opts ...Option) *Worker {
	w := &Worker{
		queue:    queue,
		registry: registry,
		engine:   engine,
		lang:     "eng",
		policy:   ContinueOnFailure,
		logger:   slog.Default(),
		state:    StateIdle,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Run processes batches until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("worker already running")
	}
	defer func() {
		if err := w.engine.Close(); err != nil {
			w.logger.Warn("closing ocr engine failed", "error", err)
		}
	}()

	w.logger.Info("worker started", "engine", w.engine.Name(), "language", w.lang, "on_failure", string(w.policy))
	for {
		batch, err := w.queue.Dequeue(ctx)
		if err != nil {
			w.logger.Info("worker stopped", "batches", w.batches.Load())
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		w.ProcessBatch(ctx, batch)
	}
}

// ProcessBatch runs OCR over every payload of the batch in order.
func (w *Worker) ProcessBatch(ctx context.Context, batch models.PendingBatch) {
	w.setState(StateProcessing, batch.JobID)
	defer w.setState(StateIdle, "")

	job := shortID(batch.JobID)
	start := time.Now()
	w.logger.Info("batch started", "job", job, "files", len(batch.Payloads))

	urls := w.fileURLs(batch.JobID)
	completed, failed := 0, 0

	for i, payload := range batch.Payloads {
		if ctx.Err() != nil {
			w.logger.Warn("batch interrupted by shutdown", "job", job, "remaining", len(batch.Payloads)-i)
			return
		}

		text, err := w.recognize(ctx, payload)
		if err != nil {
			failed++
			w.failed.Add(1)
			w.logger.Error("ocr failed", "job", job, "file", i, "error", err)

			if w.policy == AbortOnFailure {
				w.logger.Warn("batch aborted", "job", job, "file", i, "pending", len(batch.Payloads)-i)
				w.batches.Add(1)
				return
			}
			if merr := w.registry.MarkFailed(batch.JobID, i, err.Error()); merr != nil {
				w.logger.Error("recording failure failed", "job", job, "file", i, "error", merr)
			}
			continue
		}

		if err := w.registry.MarkComplete(batch.JobID, i, text); err != nil {
			w.logger.Error("recording result failed", "job", job, "file", i, "error", err)
			continue
		}
		completed++
		w.completed.Add(1)
		w.index(ctx, batch.JobID, i, urlAt(urls, i), text)
	}

	w.batches.Add(1)
	w.logger.Info("batch complete",
		"job", job,
		"completed", completed,
		"failed", failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// recognize calls the engine, turning a panic into an error.
func (w *Worker) recognize(ctx context.Context, payload []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ocr panicked: %v", r)
		}
	}()
	return w.engine.Recognize(ctx, payload, w.lang)
}

func (w *Worker) index(ctx context.Context, jobID string, i int, url, text string) {
	if w.indexer == nil {
		return
	}
	err := w.indexer.Add(ctx, search.Entry{JobID: jobID, FileIndex: i, URL: url, Text: text})
	if err != nil {
		w.logger.Warn("indexing result failed", "job", shortID(jobID), "file", i, "error", err)
	}
}

func (w *Worker) fileURLs(jobID string) []string {
	job, ok := w.registry.Get(jobID)
	if !ok {
		return nil
	}
	urls := make([]string, len(job.Files))
	for i, f := range job.Files {
		urls[i] = f.URL
	}
	return urls
}

func urlAt(urls []string, i int) string {
	if i < len(urls) {
		return urls[i]
	}
	return ""
}

func (w *Worker) setState(s State, jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = s
	w.currentJob = jobID
}

// State returns whether the worker is idle or processing.
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Stats returns counters and the job currently being processed.
func (w *Worker) Stats() Stats {
	w.mu.RLock()
	state, current := w.state, w.currentJob
	w.mu.RUnlock()
	return Stats{
		State:          state,
		CurrentJob:     current,
		BatchesDone:    w.batches.Load(),
		FilesCompleted: w.completed.Load(),
		FilesFailed:    w.failed.Load(),
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
