// Package capture provides frame sources: a live camera via GoCV (OpenCV),
// a still image, and a scripted mock for tests.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ayusman/glowlens/internal/frame"
)

// Default camera settings
const (
	DefaultFPS    = 15
	DefaultWidth  = 1280
	DefaultHeight = 720
)

var (
	// ErrDeviceBusy is returned when another source already holds the device.
	ErrDeviceBusy = errors.New("camera device is in use")
	// ErrNotRunning is returned by operations that need a started source.
	ErrNotRunning = errors.New("frame source is not running")
)

// FrameSource owns a stream of frames.
//
// Start is idempotent: starting a running source returns nil and keeps the
// existing stream. Stop releases the underlying device before returning and
// is safe to call on a stopped source.
type FrameSource interface {
	Start(ctx context.Context) error
	Stop() error
	// CurrentFrame returns the most recent frame, or false when the source is
	// stopped or has not produced a frame yet.
	CurrentFrame() (*frame.Sample, bool)
	Running() bool
}

// Facing is the requested camera direction.
type Facing string

// Facing modes
const (
	FacingUser        Facing = "user"
	FacingEnvironment Facing = "environment"
)

// Constraints parameterize a camera request.
type Constraints struct {
	DeviceID int
	Width    int
	Height   int
	FPS      int
	Facing   Facing
}

// withDefaults fills unset fields.
func (c Constraints) withDefaults() Constraints {
	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	if c.Height <= 0 {
		c.Height = DefaultHeight
	}
	if c.FPS <= 0 {
		c.FPS = DefaultFPS
	}
	if c.Facing == "" {
		c.Facing = FacingUser
	}
	return c
}

// CameraErrorKind classifies camera failures.
type CameraErrorKind int

// Camera error kinds
const (
	Unknown CameraErrorKind = iota
	PermissionDenied
	NotFound
)

func (k CameraErrorKind) String() string {
	switch k {
	case PermissionDenied:
		return "permission denied"
	case NotFound:
		return "not found"
	default:
		return "unknown"
	}
}

// CameraError is returned when a camera cannot be started.
type CameraError struct {
	Kind   CameraErrorKind
	Device int
	Err    error
}

func (e *CameraError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("camera %d: %s", e.Device, e.Kind)
	}
	return fmt.Sprintf("camera %d: %s: %v", e.Device, e.Kind, e.Err)
}

func (e *CameraError) Unwrap() error {
	return e.Err
}

// Registry enforces exclusive ownership of camera devices across sources.
type Registry struct {
	mu    sync.Mutex
	owned map[int]bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{owned: make(map[int]bool)}
}

// Claim marks device as owned, failing with ErrDeviceBusy if it already is.
// A nil Registry allows every claim.
func (r *Registry) Claim(device int) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.owned[device] {
		return ErrDeviceBusy
	}
	r.owned[device] = true
	return nil
}

// Release gives up ownership of device.
func (r *Registry) Release(device int) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.owned, device)
}

// Held reports whether device is currently claimed.
func (r *Registry) Held(device int) bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owned[device]
}
