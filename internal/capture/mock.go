package capture

import (
	"context"
	"sync"

	"github.com/ayusman/glowlens/internal/frame"
)

// MockSource plays back scripted frames for testing. Every CurrentFrame call
// advances playback by one frame; after the last frame it either loops or
// keeps returning the final frame.
type MockSource struct {
	frames []*frame.Sample
	index  int
	loop   bool

	// StartErr, when set, is returned by Start instead of starting.
	StartErr error

	mu      sync.Mutex
	running bool
	lostErr error
	starts  int
	stops   int
}

// NewMockSource creates a MockSource over frames.
func NewMockSource(frames []*frame.Sample, loop bool) *MockSource {
	return &MockSource{
		frames: frames,
		loop:   loop,
	}
}

// Start begins playback from the first frame.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}
	if m.StartErr != nil {
		return m.StartErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.running = true
	m.lostErr = nil
	m.index = 0
	m.starts++
	return nil
}

// Stop halts playback.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.stops++
	}
	m.running = false
	return nil
}

// CurrentFrame returns the next scripted frame.
func (m *MockSource) CurrentFrame() (*frame.Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running || m.lostErr != nil || len(m.frames) == 0 {
		return nil, false
	}

	if m.index >= len(m.frames) {
		if m.loop {
			m.index = 0
		} else {
			return m.frames[len(m.frames)-1], true
		}
	}

	f := m.frames[m.index]
	m.index++
	return f, true
}

// Running reports whether playback is active.
func (m *MockSource) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running && m.lostErr == nil
}

// Lose simulates the device going away mid-stream, as when access is revoked.
func (m *MockSource) Lose(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lostErr = err
}

// Err returns the error passed to Lose since the last Start.
func (m *MockSource) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lostErr
}

// SetFrames replaces the frame sequence and restarts playback.
func (m *MockSource) SetFrames(frames []*frame.Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = frames
	m.index = 0
}

// Calls returns how many times the source was started and stopped.
func (m *MockSource) Calls() (starts, stops int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts, m.stops
}
