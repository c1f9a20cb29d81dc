package session

import (
	"errors"
	"fmt"

	"github.com/ayusman/glowlens/internal/capture"
	"github.com/ayusman/glowlens/internal/detector"
	"github.com/ayusman/glowlens/internal/landmark"
	"github.com/ayusman/glowlens/internal/render"
)

var (
	// ErrInvalidState is returned when an operation is not allowed in the current state.
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrNoResult is returned by Save and Export when there is no analysis result.
	ErrNoResult = errors.New("no analysis result")
	// ErrStopped is returned when the session was stopped while the operation was in flight.
	ErrStopped = errors.New("session stopped")
	// ErrNoStore is returned by Save when the session has no snapshot store.
	ErrNoStore = errors.New("no snapshot store configured")
)

// RejectReason explains why a capture was refused.
type RejectReason int

// Reject reasons
const (
	NoSubjectPresent RejectReason = iota
)

func (r RejectReason) String() string {
	switch r {
	case NoSubjectPresent:
		return "no subject present"
	default:
		return "unknown"
	}
}

// CaptureRejectedError is returned by Capture when there is nothing to
// analyze. The session stays in its detecting state.
type CaptureRejectedError struct {
	Reason   RejectReason
	Topology landmark.Topology
}

func (e *CaptureRejectedError) Error() string {
	return fmt.Sprintf("capture rejected: %s", e.Reason)
}

// Prompt is the framing guidance shown to the user.
func (e *CaptureRejectedError) Prompt() string {
	return fmt.Sprintf("Position your %s in the frame", e.Topology.Kind())
}

// Affordance is the single action offered to the user for an error.
type Affordance struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

// Affordance actions
const (
	ActionEnableCamera = "enable_camera"
	ActionCheckDevice  = "check_device"
	ActionReload       = "reload"
	ActionReframe      = "reframe"
	ActionRetryExport  = "retry_export"
	ActionDismiss      = "dismiss"
)

// AffordanceFor maps err to its user affordance.
func AffordanceFor(err error) Affordance {
	var (
		camErr    *capture.CameraError
		loadErr   *detector.ModelLoadError
		rejectErr *CaptureRejectedError
		renderErr *render.RenderError
	)

	switch {
	case errors.As(err, &camErr) && camErr.Kind == capture.PermissionDenied:
		return Affordance{ActionEnableCamera, "Camera access is blocked. Allow it in your system settings, then try again."}
	case errors.As(err, &camErr):
		return Affordance{ActionCheckDevice, "Could not use the camera. Check that it is connected and not used by another app."}
	case errors.As(err, &loadErr):
		return Affordance{ActionReload, "The landmark model failed to load. Reload to try again."}
	case errors.As(err, &rejectErr):
		return Affordance{ActionReframe, rejectErr.Prompt()}
	case errors.As(err, &renderErr):
		return Affordance{ActionRetryExport, "Export failed. Retry download."}
	default:
		return Affordance{ActionDismiss, "Something went wrong. Please try again."}
	}
}
