// Package session drives one capture and analysis flow: camera start, the
// live detection loop, capture of a frozen frame, paced analysis stages and
// export of the result.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/glowlens/internal/analysis"
	"github.com/ayusman/glowlens/internal/capture"
	"github.com/ayusman/glowlens/internal/detector"
	"github.com/ayusman/glowlens/internal/frame"
	"github.com/ayusman/glowlens/internal/landmark"
	"github.com/ayusman/glowlens/internal/lighting"
	"github.com/ayusman/glowlens/internal/logger"
	"github.com/ayusman/glowlens/internal/render"
)

// DefaultStageDelay is the time each analysis stage is shown for.
const DefaultStageDelay = time.Second

// DefaultMaxDetectFailures is how many consecutive failed detections, three
// seconds at 15 fps, mark the landmark model as lost.
const DefaultMaxDetectFailures = 45

// subscriberBuffer is the per-subscriber event backlog.
const subscriberBuffer = 64

// blockingSendTimeout is how long a full subscriber may hold up an event that
// must not be skipped before it is dropped anyway.
const blockingSendTimeout = 250 * time.Millisecond

// Detector finds landmarks in frames. *detector.Adapter implements it.
type Detector interface {
	Topology() landmark.Topology
	Load(ctx context.Context) error
	Detect(f *frame.Sample) (landmark.Set, error)
}

// Renderer turns a result into a downloadable card. *render.Renderer implements it.
type Renderer interface {
	Render(ctx context.Context, res *analysis.Result) (*render.Artifact, error)
}

// SnapshotStore persists results and exports. *store.Store implements it.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, res *analysis.Result) error
	LogExport(ctx context.Context, sessionID, kind, filename string, size int) error
}

// Config wires a Session.
type Config struct {
	Source   capture.FrameSource
	Detector Detector
	Analyzer *analysis.Analyzer
	Renderer Renderer
	// Snapshots may be nil; Save then fails with ErrNoStore.
	Snapshots SnapshotStore
	// Scheduler drives the live loop. Nil means the host calls Tick itself.
	Scheduler Scheduler

	LightingThreshold float64
	LightingStride    int
	StageDelay        time.Duration
	// MaxDetectFailures is the run of Detect errors after which the session
	// moves to Error. Shorter runs count as frames without a subject.
	MaxDetectFailures int
	// Stages are the progress labels shown while analyzing.
	Stages []string

	Logger logrus.FieldLogger
}

// DefaultStages returns the progress labels for a topology.
func DefaultStages(t landmark.Topology) []string {
	if t.Kind() == "hand" {
		return []string{"Measuring hand proportions", "Reading skin tone", "Matching nail shades"}
	}
	return []string{"Mapping facial structure", "Reading skin undertones", "Matching your palette"}
}

// Session is the capture and analysis state machine for one topology.
// All methods are safe for concurrent use.
type Session struct {
	id       string
	config   Config
	topology landmark.Topology
	monitor  *lighting.Monitor
	log      logrus.FieldLogger

	// tickMu is held for the duration of a tick; a tick that cannot get it is dropped
	tickMu sync.Mutex

	mu          sync.Mutex
	state       State
	detection   Detection
	light       lighting.State
	gate        *lighting.Gate
	latestFrame *frame.Sample
	latestSet   landmark.Set
	result      *analysis.Result
	err         error
	stage       int
	// gen is bumped on every transition that invalidates in-flight work
	gen         uint64
	startCancel context.CancelFunc
	loopCancel  context.CancelFunc
	workCancel  context.CancelFunc
	wg          sync.WaitGroup

	// detectFailures counts consecutive Detect errors in the live loop
	detectFailures int

	subsMu  sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// New creates an idle Session.
func New(config Config) (*Session, error) {
	if config.Source == nil || config.Detector == nil || config.Analyzer == nil {
		return nil, errors.New("session: source, detector and analyzer are required")
	}

	topo := config.Detector.Topology()
	if config.LightingThreshold <= 0 {
		config.LightingThreshold = lighting.FaceThreshold
		if topo.Kind() == "hand" {
			config.LightingThreshold = lighting.HandThreshold
		}
	}
	if config.StageDelay <= 0 {
		config.StageDelay = DefaultStageDelay
	}
	if config.MaxDetectFailures <= 0 {
		config.MaxDetectFailures = DefaultMaxDetectFailures
	}
	if len(config.Stages) == 0 {
		config.Stages = DefaultStages(topo)
	}

	id := uuid.NewString()
	return &Session{
		id:       id,
		config:   config,
		topology: topo,
		monitor:  lighting.NewMonitor(config.LightingThreshold),
		gate:     lighting.NewGate(config.LightingStride),
		log: logger.OrDiscard(config.Logger).WithFields(logger.Fields{
			"session":  id,
			"topology": topo.Name,
		}),
		subs: make(map[int]chan Event),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Topology returns the landmark topology this session analyzes.
func (s *Session) Topology() landmark.Topology {
	return s.topology
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		ID:         s.id,
		Topology:   s.topology.Name,
		State:      s.state,
		Detection:  s.detection,
		Lighting:   s.light,
		Stage:      s.stage,
		StageCount: len(s.config.Stages),
		Result:     s.result,
		Err:        s.err,
	}
	if s.err != nil {
		a := AffordanceFor(s.err)
		st.Affordance = &a
	}
	return st
}

// LatestFrame returns the most recent frame seen by the live loop.
func (s *Session) LatestFrame() (*frame.Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != CameraActive || s.latestFrame == nil {
		return nil, false
	}
	return s.latestFrame, true
}

// Subscribe returns a channel receiving session events and a function that
// ends the subscription. A subscriber that falls behind misses detection and
// lighting updates; other events wait for it to catch up, up to a short bound.
func (s *Session) Subscribe() (<-chan Event, func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Event, subscriberBuffer)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// StartCamera moves Idle to CameraActive: the model is loaded, then the
// source is started. Starting an active session is a no-op.
func (s *Session) StartCamera(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case CameraActive, CameraRequesting:
		s.mu.Unlock()
		return nil
	case Idle:
	default:
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("start camera in %s: %w", st, ErrInvalidState)
	}
	return s.startLocked(ctx)
}

// Reset discards the result and returns to the live camera.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Result {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("reset in %s: %w", st, ErrInvalidState)
	}
	return s.startLocked(ctx)
}

// startLocked is called with mu held and releases it.
func (s *Session) startLocked(ctx context.Context) error {
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.startCancel = cancel

	s.result = nil
	s.err = nil
	s.stage = 0
	s.latestFrame = nil
	s.latestSet = landmark.Set{}
	s.detectFailures = 0
	s.detection = NoSubject
	s.light = lighting.State{}
	s.gate.Reset()
	s.setState(CameraRequesting)
	s.mu.Unlock()

	err := s.config.Detector.Load(ctx)
	if err == nil {
		err = s.config.Source.Start(ctx)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		if err == nil {
			s.config.Source.Stop()
		}
		return ErrStopped
	}
	s.startCancel = nil

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.setState(Idle)
			s.mu.Unlock()
			return err
		}
		s.failLocked(err)
		s.mu.Unlock()
		return err
	}

	s.setState(CameraActive)
	if s.config.Scheduler != nil {
		loopCtx, loopCancel := context.WithCancel(context.Background())
		s.loopCancel = loopCancel
		s.wg.Add(1)
		go s.run(loopCtx)
	}
	s.mu.Unlock()
	return nil
}

func (s *Session) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		if err := s.config.Scheduler.Wait(ctx); err != nil {
			return
		}
		s.Tick()
	}
}

// Tick runs one iteration of the live loop: read the current frame, detect
// landmarks and, on the lighting stride, sample brightness. It reports whether
// a frame was applied. A tick that overlaps a running one is dropped, and a
// tick whose session was stopped or captured meanwhile is discarded.
func (s *Session) Tick() bool {
	if !s.tickMu.TryLock() {
		return false
	}
	defer s.tickMu.Unlock()

	s.mu.Lock()
	if s.state != CameraActive {
		s.mu.Unlock()
		return false
	}
	gen := s.gen
	s.mu.Unlock()

	if !s.config.Source.Running() {
		s.sourceLost(gen)
		return false
	}

	f, ok := s.config.Source.CurrentFrame()
	if !ok {
		return false
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return false
	}
	sampleLight := s.gate.Next()
	s.mu.Unlock()

	set, err := s.config.Detector.Detect(f)
	if err != nil {
		if s.detectFailed(gen, err) {
			return false
		}
		set = landmark.Set{Topology: s.topology, Aspect: f.Aspect()}
	}

	var light *lighting.State
	if sampleLight {
		l := s.monitor.Sample(f)
		light = &l
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen || s.state != CameraActive {
		return false
	}

	s.latestFrame = f
	s.latestSet = set
	if err == nil {
		s.detectFailures = 0
	}

	detection := NoSubject
	if !set.Empty() {
		detection = Detecting
	}
	if detection != s.detection {
		s.detection = detection
		s.log.WithField("detection", detection).Debug("detection changed")
		s.emitLocked(Event{Type: EventDetection})
	}

	if light != nil {
		if light.IsLow != s.light.IsLow {
			s.log.WithField("luminance", light.AverageLuminance).Debug("lighting changed")
		}
		s.light = *light
		s.emitLocked(Event{Type: EventLighting, Lighting: light})
	}

	return true
}

// detectFailed records a failed detection. Once MaxDetectFailures happen in a
// row the model is treated as lost: the session fails with a
// *detector.ModelLoadError and the camera is released. It reports whether the
// session left the live loop.
func (s *Session) detectFailed(gen uint64, err error) bool {
	s.mu.Lock()
	if s.gen != gen || s.state != CameraActive {
		s.mu.Unlock()
		return true
	}
	s.detectFailures++
	if s.detectFailures == 1 {
		s.log.WithError(err).Warn("detect")
	}
	if s.detectFailures < s.config.MaxDetectFailures {
		s.mu.Unlock()
		return false
	}

	var loadErr *detector.ModelLoadError
	if !errors.As(err, &loadErr) {
		loadErr = &detector.ModelLoadError{Kind: detector.UnsupportedDevice, Err: err}
	}
	s.gen++
	s.failLocked(loadErr)
	s.mu.Unlock()

	if err := s.config.Source.Stop(); err != nil {
		s.log.WithError(err).Warn("stop source")
	}
	return true
}

func (s *Session) sourceLost(gen uint64) {
	var err error = &capture.CameraError{Kind: capture.Unknown, Err: capture.ErrNotRunning}
	if e, ok := s.config.Source.(interface{ Err() error }); ok && e.Err() != nil {
		err = e.Err()
	}

	s.mu.Lock()
	if s.gen != gen || s.state != CameraActive {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.failLocked(err)
	s.mu.Unlock()

	if err := s.config.Source.Stop(); err != nil {
		s.log.WithError(err).Warn("stop source")
	}
}

// Capture freezes the latest frame and landmarks, stops the camera and
// analyzes them. It returns once the result is computed; the Result state is
// entered after the progress stages have been shown. With no subject in
// frame it returns a *CaptureRejectedError and leaves the state unchanged.
func (s *Session) Capture() error {
	s.mu.Lock()
	if s.state != CameraActive {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("capture in %s: %w", st, ErrInvalidState)
	}

	if s.latestFrame == nil || s.latestSet.Empty() {
		rejected := &CaptureRejectedError{Reason: NoSubjectPresent, Topology: s.topology}
		a := AffordanceFor(rejected)
		s.emitLocked(Event{Type: EventRejected, Affordance: &a})
		s.mu.Unlock()
		s.log.Debug("capture rejected: no subject")
		return rejected
	}

	f := s.latestFrame.Clone()
	set := s.latestSet
	s.gen++
	gen := s.gen
	s.cancelLoopLocked()
	s.setState(Capturing)
	s.mu.Unlock()

	if err := s.config.Source.Stop(); err != nil {
		s.log.WithError(err).Warn("stop source")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return ErrStopped
	}

	s.stage = 0
	s.setState(Analyzing)

	res, err := s.config.Analyzer.Analyze(s.id, f, set)
	if err != nil {
		s.failLocked(err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.workCancel = cancel
	s.wg.Add(1)
	go s.pace(ctx, gen, res)
	return nil
}

// pace shows each analysis stage for StageDelay, then publishes res.
func (s *Session) pace(ctx context.Context, gen uint64, res *analysis.Result) {
	defer s.wg.Done()

	for i, label := range s.config.Stages {
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		s.stage = i + 1
		s.emitLocked(Event{Type: EventStage, Stage: i + 1, StageCount: len(s.config.Stages), Label: label})
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.config.StageDelay):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.workCancel = nil
	s.result = res
	s.setState(Result)
	s.emitLocked(Event{Type: EventResult, Result: res})
	s.log.WithFields(logrus.Fields{
		"shape":    res.Geometry.Shape,
		"category": res.Color.Category,
	}).Info("analysis complete")
}

// Acknowledge dismisses an error and returns to Idle.
func (s *Session) Acknowledge() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Error {
		return fmt.Errorf("acknowledge in %s: %w", s.state, ErrInvalidState)
	}
	s.err = nil
	s.setState(Idle)
	return nil
}

// Stop cancels all in-flight work, releases the camera and returns to Idle.
// Results of detections or analyses still running are discarded.
func (s *Session) Stop() error {
	s.mu.Lock()
	s.gen++
	if s.startCancel != nil {
		s.startCancel()
		s.startCancel = nil
	}
	s.cancelLoopLocked()
	if s.workCancel != nil {
		s.workCancel()
		s.workCancel = nil
	}
	s.result = nil
	s.err = nil
	s.stage = 0
	s.latestFrame = nil
	s.latestSet = landmark.Set{}
	s.detection = NoSubject
	if s.state != Idle {
		s.setState(Idle)
	}
	s.mu.Unlock()

	err := s.config.Source.Stop()
	s.wg.Wait()
	return err
}

// Result returns the current analysis result.
func (s *Session) Result() (*analysis.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Result || s.result == nil {
		return nil, ErrNoResult
	}
	return s.result, nil
}

// Save persists the current result as the topology's snapshot.
func (s *Session) Save(ctx context.Context) error {
	res, err := s.Result()
	if err != nil {
		return err
	}
	if s.config.Snapshots == nil {
		return ErrNoStore
	}
	if err := s.config.Snapshots.SaveSnapshot(ctx, res); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	s.log.WithField("result", res.ID).Info("snapshot saved")
	return nil
}

// Export renders the current result. A RenderError leaves the Result state
// intact so the export can be retried. If ctx is canceled the render is
// abandoned and ctx.Err() is returned without an event.
func (s *Session) Export(ctx context.Context) (*render.Artifact, error) {
	res, err := s.Result()
	if err != nil {
		return nil, err
	}
	if s.config.Renderer == nil {
		return nil, &render.RenderError{Kind: render.RasterizationFailed, Err: errors.New("no renderer configured")}
	}

	art, err := s.config.Renderer.Render(ctx, res)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.WithError(err).Warn("export failed")
		a := AffordanceFor(err)
		s.emit(Event{Type: EventExport, Affordance: &a})
		return nil, err
	}

	if s.config.Snapshots != nil {
		if err := s.config.Snapshots.LogExport(ctx, s.id, res.Kind(), art.Filename, len(art.Data)); err != nil {
			s.log.WithError(err).Warn("log export")
		}
	}
	s.emit(Event{Type: EventExport, Filename: art.Filename})
	return art, nil
}

func (s *Session) cancelLoopLocked() {
	if s.loopCancel != nil {
		s.loopCancel()
		s.loopCancel = nil
	}
}

func (s *Session) failLocked(err error) {
	s.cancelLoopLocked()
	s.err = err
	s.latestFrame = nil
	s.latestSet = landmark.Set{}
	s.detection = NoSubject
	s.setState(Error)

	a := AffordanceFor(err)
	s.emitLocked(Event{Type: EventError, Affordance: &a})
	s.log.WithError(err).Warn("session error")
}

func (s *Session) setState(st State) {
	from := s.state
	s.state = st
	s.log.WithFields(logrus.Fields{"from": from, "state": st}).Debug("state changed")
	s.emitLocked(Event{Type: EventState})
}

// emitLocked fills the session fields of e from current state and publishes it.
func (s *Session) emitLocked(e Event) {
	e.State = s.state
	e.Detection = s.detection
	s.publish(e)
}

func (s *Session) emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitLocked(e)
}

func (s *Session) publish(e Event) {
	e.Session = s.id
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- e:
			continue
		default:
		}
		// Detection and lighting updates are superseded by the next frame
		if e.Type == EventDetection || e.Type == EventLighting {
			continue
		}

		timer := time.NewTimer(blockingSendTimeout)
		select {
		case ch <- e:
		case <-timer.C:
			s.log.WithField("event", e.Type).Warn("subscriber not reading, event dropped")
		}
		timer.Stop()
	}
}
