package testutil

import (
	"context"
	"errors"
	"sync"
)

// ErrFakeOCR is the error FakeEngine returns for images registered with Fail.
var ErrFakeOCR = errors.New("fake ocr failure")

// FakeEngine implements ocr.Engine. By default it returns "text:<payload>"
// for every image.
type FakeEngine struct {
	mu      sync.Mutex
	calls   []string
	fail    map[string]bool
	panics  map[string]bool
	gate    chan struct{}
	closed  bool
	started chan string
}

// NewFakeEngine creates an engine that succeeds for every payload.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		fail:    make(map[string]bool),
		panics:  make(map[string]bool),
		started: make(chan string, 1024),
	}
}

// Fail makes recognition of payload return ErrFakeOCR.
func (f *FakeEngine) Fail(payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[payload] = true
}

// Panic makes recognition of payload panic.
func (f *FakeEngine) Panic(payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panics[payload] = true
}

// Hold makes every Recognize call wait for Release.
func (f *FakeEngine) Hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
}

// Release unblocks calls waiting after Hold.
func (f *FakeEngine) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// Started yields each payload as recognition begins.
func (f *FakeEngine) Started() <-chan string {
	return f.started
}

func (f *FakeEngine) Name() string { return "fake" }

func (f *FakeEngine) Recognize(ctx context.Context, image []byte, lang string) (string, error) {
	payload := string(image)

	f.mu.Lock()
	f.calls = append(f.calls, payload)
	gate := f.gate
	shouldFail := f.fail[payload]
	shouldPanic := f.panics[payload]
	f.mu.Unlock()

	select {
	case f.started <- payload:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if shouldPanic {
		panic("fake ocr panic on " + payload)
	}
	if shouldFail {
		return "", ErrFakeOCR
	}
	return "text:" + payload, nil
}

func (f *FakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Calls returns the payloads recognized so far, in order.
func (f *FakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Closed reports whether Close was called.
func (f *FakeEngine) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
