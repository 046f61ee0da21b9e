package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/snaptext/backend/internal/jobs"
	"github.com/snaptext/backend/internal/models"
	"github.com/snaptext/backend/internal/storage"
)

// File is one uploaded image as received from the client.
type File struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Manager validates uploaded batches, stores them, registers the job and
// queues the batch for OCR.
type Manager struct {
	registry  *jobs.Registry
	queue     *jobs.Queue
	allocator *jobs.Allocator
	store     storage.Store
	policy    Policy
	logger    *slog.Logger
}

// NewManager creates a new submission manager.
func NewManager(registry *jobs.Registry, queue *jobs.Queue, allocator *jobs.Allocator, store storage.Store, policy Policy, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if len(policy.AllowedTypes) == 0 {
		policy.AllowedTypes = DefaultAllowedTypes
	}
	if policy.Mode == "" {
		policy.Mode = ModeMulti
	}
	return &Manager{
		registry:  registry,
		queue:     queue,
		allocator: allocator,
		store:     store,
		policy:    policy,
		logger:    logger,
	}
}

// Policy returns the active validation policy.
func (m *Manager) Policy() Policy {
	return m.policy
}

// Submit accepts a batch and returns its job id. The job is registered
// before the batch becomes visible to the worker.
func (m *Manager) Submit(ctx context.Context, files []File) (string, error) {
	if err := m.policy.Validate(files); err != nil {
		m.logger.Info("upload rejected", "files", len(files), "reason", err)
		return "", err
	}

	stored, err := m.storeAll(ctx, files)
	if err != nil {
		return "", err
	}

	urls := make([]string, len(stored))
	payloads := make([][]byte, len(files))
	for i := range files {
		urls[i] = stored[i].URL
		payloads[i] = files[i].Data
	}

	id, err := m.register(urls)
	if err != nil {
		m.rollback(stored)
		return "", err
	}

	m.queue.Enqueue(models.PendingBatch{JobID: id, Payloads: payloads})
	m.logger.Info("job queued", "job", shortID(id), "files", len(files), "queue_depth", m.queue.Len())
	return id, nil
}

func (m *Manager) storeAll(ctx context.Context, files []File) ([]*models.FileInfo, error) {
	stored := make([]*models.FileInfo, 0, len(files))
	for _, f := range files {
		info, err := m.store.Save(ctx, f.Name, bytes.NewReader(f.Data))
		if err != nil {
			m.logger.Error("storing upload failed", "name", f.Name, "error", err)
			m.rollback(stored)
			return nil, &StorageError{Name: f.Name, Err: err}
		}
		stored = append(stored, info)
	}
	return stored, nil
}

// register allocates an id and creates the job, retrying on the rare race
// where two submissions draw the same id.
func (m *Manager) register(urls []string) (string, error) {
	for attempt := 0; attempt < jobs.DefaultAllocatorAttempts; attempt++ {
		id, err := m.allocator.Allocate()
		if err != nil {
			return "", err
		}
		err = m.registry.Create(id, urls)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, jobs.ErrJobExists) {
			return "", err
		}
	}
	return "", jobs.ErrIDSpaceExhausted
}

func (m *Manager) rollback(stored []*models.FileInfo) {
	for _, info := range stored {
		if err := m.store.Delete(context.Background(), info.Name); err != nil {
			m.logger.Warn("removing stored upload failed", "name", info.Name, "error", err)
		}
	}
}

// StorageError reports that an upload could not be persisted.
type StorageError struct {
	Name string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storing %s: %v", e.Name, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
