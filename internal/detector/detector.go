// Package detector wraps a landmark detection model behind a lifecycle-aware
// adapter.
package detector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/ayusman/glowlens/internal/frame"
	"github.com/ayusman/glowlens/internal/landmark"
	"github.com/ayusman/glowlens/internal/logger"
)

// DefaultMinConfidence is the detection score below which a subject is treated as absent.
const DefaultMinConfidence = 0.5

// ErrTopologyMismatch is returned when a model reports a layout other than the
// one the adapter was built for.
var ErrTopologyMismatch = errors.New("landmark topology mismatch")

// Backend is a landmark model serving one topology.
type Backend interface {
	// Load initializes the model and returns the topology its asset produces.
	Load(ctx context.Context) (landmark.Topology, error)
	// Detect returns the single most prominent subject, or an empty set.
	Detect(f *frame.Sample) (landmark.Set, error)
	Close() error
}

// LoadErrorKind classifies model load failures.
type LoadErrorKind int

// Load error kinds
const (
	NetworkFailure LoadErrorKind = iota
	UnsupportedDevice
	TopologyMismatch
)

func (k LoadErrorKind) String() string {
	switch k {
	case NetworkFailure:
		return "network failure"
	case UnsupportedDevice:
		return "unsupported device"
	case TopologyMismatch:
		return "topology mismatch"
	default:
		return "unknown"
	}
}

// ModelLoadError is returned by Load.
type ModelLoadError struct {
	Kind LoadErrorKind
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load landmark model: %s: %v", e.Kind, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// State is the adapter's model lifecycle.
type State int

// Model states
const (
	Unloaded State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unloaded"
	}
}

// Config holds adapter options.
type Config struct {
	// Topology is the layout callers expect.
	Topology landmark.Topology
	// MinConfidence is the minimum detection score (0.0-1.0).
	MinConfidence float64
}

// Adapter isolates model lifecycle from the pipeline. Load may be called
// concurrently; all callers share one in-flight load. Detect calls are
// serialized because backends are not reentrant.
type Adapter struct {
	config  Config
	backend Backend
	log     logrus.FieldLogger
	group   singleflight.Group

	mu    sync.Mutex
	state State

	detectMu sync.Mutex
}

// NewAdapter creates an Adapter over backend.
func NewAdapter(backend Backend, config Config, log logrus.FieldLogger) *Adapter {
	if config.MinConfidence <= 0 {
		config.MinConfidence = DefaultMinConfidence
	}
	return &Adapter{
		config:  config,
		backend: backend,
		log:     logger.OrDiscard(log).WithField("topology", config.Topology.Name),
	}
}

// Topology returns the layout this adapter serves.
func (a *Adapter) Topology() landmark.Topology {
	return a.config.Topology
}

// State returns the current model state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Load initializes the model once. Concurrent callers wait on the same load;
// a caller whose ctx ends stops waiting without aborting the shared load.
// After a failure the next call retries.
func (a *Adapter) Load(ctx context.Context) error {
	if a.State() == Ready {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ch := a.group.DoChan("load", func() (any, error) {
		return nil, a.load()
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (a *Adapter) load() error {
	a.mu.Lock()
	if a.state == Ready {
		a.mu.Unlock()
		return nil
	}
	a.state = Loading
	a.mu.Unlock()

	got, err := a.backend.Load(context.Background())
	if err == nil && got != a.config.Topology {
		err = &ModelLoadError{
			Kind: TopologyMismatch,
			Err:  fmt.Errorf("%w: model provides %s/%d, want %s/%d", ErrTopologyMismatch, got.Name, got.Points, a.config.Topology.Name, a.config.Topology.Points),
		}
	}

	if err != nil {
		var loadErr *ModelLoadError
		if !errors.As(err, &loadErr) {
			err = &ModelLoadError{Kind: NetworkFailure, Err: err}
		}

		a.mu.Lock()
		a.state = Failed
		a.mu.Unlock()

		a.log.WithError(err).Warn("landmark model failed to load")
		return err
	}

	a.mu.Lock()
	a.state = Ready
	a.mu.Unlock()

	a.log.Debug("landmark model ready")
	return nil
}

// Detect runs the model on f. An empty set means no subject was found or the
// detection scored below the confidence threshold; it is not an error.
// Calling Detect before Load has succeeded panics.
func (a *Adapter) Detect(f *frame.Sample) (landmark.Set, error) {
	if a.State() != Ready {
		panic("detector: Detect called before Load succeeded")
	}

	a.detectMu.Lock()
	defer a.detectMu.Unlock()

	empty := landmark.Set{Topology: a.config.Topology, Aspect: f.Aspect()}

	set, err := a.backend.Detect(f)
	if err != nil {
		return empty, fmt.Errorf("detect landmarks: %w", err)
	}

	if set.Empty() || set.Score < a.config.MinConfidence {
		return empty, nil
	}

	if set.Topology != a.config.Topology || len(set.Points) != a.config.Topology.Points {
		return empty, fmt.Errorf("%w: got %s with %d points", ErrTopologyMismatch, set.Topology.Name, len(set.Points))
	}

	if set.Aspect <= 0 {
		set.Aspect = f.Aspect()
	}
	return set, nil
}

// Close releases the backend.
func (a *Adapter) Close() error {
	a.detectMu.Lock()
	defer a.detectMu.Unlock()

	a.mu.Lock()
	a.state = Unloaded
	a.mu.Unlock()

	return a.backend.Close()
}
