// Package jobs holds the in-memory job registry, the identifier allocator
// and the FIFO queue of batches waiting for OCR.
package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/snaptext/backend/internal/models"
)

var (
	ErrJobExists   = errors.New("job already exists")
	ErrJobNotFound = errors.New("job not found")
	ErrFileIndex   = errors.New("file index out of range")
)

type entry struct {
	job     *models.Job
	version uint64
}

// Registry maps job ids to job state. It is the source of truth for
// status readers; only the worker mutates file entries after creation.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]*entry),
	}
}

// Create registers a job with one pending file per url.
func (r *Registry) Create(id string, urls []string) error {
	job := models.NewJob(id, urls)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[id]; ok {
		return fmt.Errorf("%w: %s", ErrJobExists, id)
	}
	r.jobs[id] = &entry{job: job, version: 1}
	return nil
}

// Get returns a snapshot of the job.
func (r *Registry) Get(id string) (models.Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.jobs[id]
	if !ok {
		return models.Job{}, false
	}
	return e.job.Clone(), true
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.jobs[id]
	return ok
}

// Version returns a counter that changes on every mutation of the job.
func (r *Registry) Version(id string) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[id]
	if !ok {
		return 0, false
	}
	return e.version, true
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// MarkComplete stores the OCR text for a file. A repeated call overwrites
// the previous result.
func (r *Registry) MarkComplete(id string, index int, text string) error {
	return r.update(id, index, func(f *models.FileResult) {
		f.Status = models.FileStatusComplete
		f.Text = text
		f.Error = ""
	})
}

// MarkFailed records an OCR failure for a file.
func (r *Registry) MarkFailed(id string, index int, reason string) error {
	return r.update(id, index, func(f *models.FileResult) {
		f.Status = models.FileStatusFailed
		f.Text = ""
		f.Error = reason
	})
}

func (r *Registry) update(id string, index int, fn func(*models.FileResult)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if index < 0 || index >= len(e.job.Files) {
		return fmt.Errorf("%w: %d of %d", ErrFileIndex, index, len(e.job.Files))
	}

	fn(&e.job.Files[index])
	e.version++

	if e.job.CompletedAt == nil && e.job.Done() {
		now := time.Now()
		e.job.CompletedAt = &now
	}
	return nil
}
