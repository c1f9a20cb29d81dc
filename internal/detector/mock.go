package detector

import (
	"context"
	"sync"
	"time"

	"github.com/ayusman/glowlens/internal/frame"
	"github.com/ayusman/glowlens/internal/landmark"
)

// MockBackend is a test Backend. It allows tests to control load and
// detection results.
type MockBackend struct {
	// Topology is what Load reports.
	Topology landmark.Topology
	// LoadErr, when set, is returned by Load.
	LoadErr error
	// LoadDelay makes Load block for the given duration.
	LoadDelay time.Duration
	// DetectFunc, when set, computes the detection for each frame.
	DetectFunc func(f *frame.Sample) (landmark.Set, error)

	mu      sync.Mutex
	result  landmark.Set
	err     error
	loads   int
	detects int
	closed  bool
}

// NewMockBackend creates a MockBackend for topology that detects nothing.
func NewMockBackend(t landmark.Topology) *MockBackend {
	return &MockBackend{Topology: t}
}

// SetResult sets the landmarks returned by Detect.
func (m *MockBackend) SetResult(set landmark.Set) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = set
}

// SetError sets the error returned by Detect.
func (m *MockBackend) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Load returns Topology after LoadDelay.
func (m *MockBackend) Load(ctx context.Context) (landmark.Topology, error) {
	m.mu.Lock()
	m.loads++
	m.mu.Unlock()

	if m.LoadDelay > 0 {
		time.Sleep(m.LoadDelay)
	}
	if m.LoadErr != nil {
		return landmark.Topology{}, m.LoadErr
	}
	return m.Topology, nil
}

// Detect returns the configured result.
func (m *MockBackend) Detect(f *frame.Sample) (landmark.Set, error) {
	m.mu.Lock()
	m.detects++
	fn, result, err := m.DetectFunc, m.result, m.err
	m.mu.Unlock()

	if fn != nil {
		return fn(f)
	}
	if err != nil {
		return landmark.Set{}, err
	}
	return result, nil
}

// Close marks the backend closed.
func (m *MockBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Calls returns how many times Load and Detect ran.
func (m *MockBackend) Calls() (loads, detects int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads, m.detects
}

// Closed reports whether Close was called.
func (m *MockBackend) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
