package jobs

import (
	"context"
	"sync"

	"github.com/snaptext/backend/internal/models"
)

// Queue is an unbounded FIFO of batches. Enqueue never blocks; Dequeue
// blocks until a batch is available or the context ends.
type Queue struct {
	mu    sync.Mutex
	items []models.PendingBatch
	ready chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		ready: make(chan struct{}, 1),
	}
}

// Enqueue appends a batch to the tail of the queue.
func (q *Queue) Enqueue(b models.PendingBatch) {
	q.mu.Lock()
	q.items = append(q.items, b)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// TryDequeue removes the head of the queue. ok is false when empty.
func (q *Queue) TryDequeue() (b models.PendingBatch, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return models.PendingBatch{}, false
	}
	b = q.items[0]
	q.items[0] = models.PendingBatch{}
	q.items = q.items[1:]
	return b, true
}

// Dequeue waits for the next batch.
func (q *Queue) Dequeue(ctx context.Context) (models.PendingBatch, error) {
	for {
		if b, ok := q.TryDequeue(); ok {
			return b, nil
		}
		select {
		case <-ctx.Done():
			return models.PendingBatch{}, ctx.Err()
		case <-q.ready:
		}
	}
}

// Len returns the number of queued batches.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
