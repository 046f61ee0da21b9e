package jobs

import (
	"errors"

	"github.com/google/uuid"
)

// DefaultAllocatorAttempts bounds the number of candidates tried per id.
const DefaultAllocatorAttempts = 8

var ErrIDSpaceExhausted = errors.New("could not allocate a unique job id")

// Lookup is the part of the registry the allocator needs.
type Lookup interface {
	Has(id string) bool
}

// Allocator generates job ids that are not present in the registry.
type Allocator struct {
	lookup   Lookup
	attempts int
	newID    func() string
}

// AllocatorOption configures an Allocator.
type AllocatorOption func(*Allocator)

// WithAttempts overrides the retry bound.
func WithAttempts(n int) AllocatorOption {
	return func(a *Allocator) {
		if n > 0 {
			a.attempts = n
		}
	}
}

// WithGenerator replaces the uuid generator, e.g. in tests.
func WithGenerator(fn func() string) AllocatorOption {
	return func(a *Allocator) {
		if fn != nil {
			a.newID = fn
		}
	}
}

// NewAllocator creates an allocator backed by random v4 UUIDs.
func NewAllocator(lookup Lookup, opts ...AllocatorOption) *Allocator {
	a := &Allocator{
		lookup:   lookup,
		attempts: DefaultAllocatorAttempts,
		newID:    func() string { return uuid.New().String() },
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Allocate returns an id that is not currently registered.
func (a *Allocator) Allocate() (string, error) {
	for i := 0; i < a.attempts; i++ {
		id := a.newID()
		if !a.lookup.Has(id) {
			return id, nil
		}
	}
	return "", ErrIDSpaceExhausted
}
