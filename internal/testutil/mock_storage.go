// mock_storage.go - Mock storage implementation for testing
package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/snaptext/backend/internal/models"
)

// ErrMockStorage is returned by MockStorage when a failure is injected.
var ErrMockStorage = errors.New("mock storage failure")

// MockStorage implements storage.Store in memory.
type MockStorage struct {
	mu       sync.RWMutex
	files    map[string][]byte
	saves    int
	failAt   int // 1-based Save call that fails, 0 = never
	deleted  []string
	sequence int
}

// NewMockStorage creates an empty mock store.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		files: make(map[string][]byte),
	}
}

// FailOnSave makes the n-th Save call (1-based) return ErrMockStorage.
func (m *MockStorage) FailOnSave(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAt = n
}

func (m *MockStorage) Save(ctx context.Context, name string, r io.Reader) (*models.FileInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.saves++
	if m.failAt > 0 && m.saves == m.failAt {
		return nil, ErrMockStorage
	}

	m.sequence++
	stored := fmt.Sprintf("%s-%d", name, m.sequence)
	m.files[stored] = data
	return &models.FileInfo{
		Name:       stored,
		Original:   name,
		URL:        "/upload/" + stored,
		Size:       int64(len(data)),
		UploadedAt: time.Now(),
	}, nil
}

func (m *MockStorage) Delete(ctx context.Context, storedName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, storedName)
	m.deleted = append(m.deleted, storedName)
	return nil
}

// Count returns the number of files currently stored.
func (m *MockStorage) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

// Deleted returns the names passed to Delete.
func (m *MockStorage) Deleted() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.deleted...)
}

// Data returns the bytes stored under name.
func (m *MockStorage) Data(storedName string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.files[storedName]
	return d, ok
}
