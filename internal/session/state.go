package session

import (
	"fmt"
	"time"

	"github.com/ayusman/glowlens/internal/analysis"
	"github.com/ayusman/glowlens/internal/lighting"
)

// State is the session lifecycle state.
type State int

// Session states
const (
	Idle State = iota
	CameraRequesting
	CameraActive
	Capturing
	Analyzing
	Result
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CameraRequesting:
		return "camera_requesting"
	case CameraActive:
		return "camera_active"
	case Capturing:
		return "capturing"
	case Analyzing:
		return "analyzing"
	case Result:
		return "result"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for st := Idle; st <= Error; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// Detection is the sub-state of CameraActive.
type Detection int

// Detection sub-states
const (
	NoSubject Detection = iota
	Detecting
)

func (d Detection) String() string {
	if d == Detecting {
		return "detecting"
	}
	return "no_subject"
}

// MarshalText implements encoding.TextMarshaler.
func (d Detection) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Detection) UnmarshalText(text []byte) error {
	switch string(text) {
	case "detecting":
		*d = Detecting
	case "no_subject":
		*d = NoSubject
	default:
		return fmt.Errorf("unknown detection state %q", text)
	}
	return nil
}

// EventType identifies a session event.
type EventType string

// Event types
const (
	EventState     EventType = "state"
	EventDetection EventType = "detection"
	EventLighting  EventType = "lighting"
	EventStage     EventType = "stage"
	EventRejected  EventType = "capture_rejected"
	EventResult    EventType = "result"
	EventError     EventType = "error"
	EventExport    EventType = "export"
)

// Event is published to subscribers on every observable change.
type Event struct {
	Type       EventType        `json:"type"`
	Session    string           `json:"session"`
	State      State            `json:"state"`
	Detection  Detection        `json:"detection"`
	Lighting   *lighting.State  `json:"lighting,omitempty"`
	Stage      int              `json:"stage,omitempty"`
	StageCount int              `json:"stage_count,omitempty"`
	Label      string           `json:"label,omitempty"`
	Result     *analysis.Result `json:"result,omitempty"`
	Affordance *Affordance      `json:"affordance,omitempty"`
	Filename   string           `json:"filename,omitempty"`
	Time       time.Time        `json:"time"`
}

// Status is a point-in-time view of a session.
type Status struct {
	ID         string           `json:"id"`
	Topology   string           `json:"topology"`
	State      State            `json:"state"`
	Detection  Detection        `json:"detection"`
	Lighting   lighting.State   `json:"lighting"`
	Stage      int              `json:"stage"`
	StageCount int              `json:"stage_count"`
	Result     *analysis.Result `json:"result,omitempty"`
	Affordance *Affordance      `json:"affordance,omitempty"`
	Err        error            `json:"-"`
}
