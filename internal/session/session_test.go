package session

import (
	"context"
	"errors"
	imgcolor "image/color"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/glowlens/internal/analysis"
	"github.com/ayusman/glowlens/internal/capture"
	"github.com/ayusman/glowlens/internal/catalog"
	"github.com/ayusman/glowlens/internal/color"
	"github.com/ayusman/glowlens/internal/detector"
	"github.com/ayusman/glowlens/internal/frame"
	"github.com/ayusman/glowlens/internal/landmark"
	"github.com/ayusman/glowlens/internal/render"
)

var (
	warm = imgcolor.RGBA{R: 224, G: 172, B: 105, A: 255}
	cool = imgcolor.RGBA{R: 90, G: 110, B: 200, A: 255}
	dark = imgcolor.RGBA{R: 10, G: 10, B: 10, A: 255}
)

func uniform(c imgcolor.RGBA) *frame.Sample {
	return frame.Uniform(320, 240, c, time.Now())
}

type fakeRenderer struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (r *fakeRenderer) Render(ctx context.Context, res *analysis.Result) (*render.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.err != nil {
		return nil, r.err
	}
	return &render.Artifact{Filename: "glowlens-" + res.Kind() + ".jpg", ContentType: "image/jpeg", Data: []byte{0xFF, 0xD8}}, nil
}

type fakeStore struct {
	mu       sync.Mutex
	saved    []*analysis.Result
	exported []string
}

func (f *fakeStore) SaveSnapshot(ctx context.Context, res *analysis.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, res)
	return nil
}

func (f *fakeStore) LogExport(ctx context.Context, sessionID, kind, filename string, size int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exported = append(f.exported, filename)
	return nil
}

type harness struct {
	session  *Session
	source   *capture.MockSource
	backend  *detector.MockBackend
	renderer *fakeRenderer
	store    *fakeStore
}

func newHarness(t *testing.T, frames []*frame.Sample, mutate func(*Config)) *harness {
	t.Helper()

	analyzer, err := analysis.New(catalog.MustLoad())
	if err != nil {
		t.Fatalf("analysis.New() error = %v", err)
	}

	h := &harness{
		source:   capture.NewMockSource(frames, false),
		backend:  detector.NewMockBackend(landmark.Hand),
		renderer: &fakeRenderer{},
		store:    &fakeStore{},
	}
	h.backend.SetResult(landmark.OpenPalmLandmarks())

	config := Config{
		Source:     h.source,
		Detector:   detector.NewAdapter(h.backend, detector.Config{Topology: landmark.Hand}, nil),
		Analyzer:   analyzer,
		Renderer:   h.renderer,
		Snapshots:  h.store,
		StageDelay: time.Millisecond,
	}
	if mutate != nil {
		mutate(&config)
	}

	h.session, err = New(config)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { h.session.Stop() })
	return h
}

func waitForState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", s.State(), want)
}

// captureResult drives a started session to Result.
func captureResult(t *testing.T, h *harness) *analysis.Result {
	t.Helper()
	if !h.session.Tick() {
		t.Fatal("Tick() did not apply a frame")
	}
	if err := h.session.Capture(); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	waitForState(t, h.session, Result)
	res, err := h.session.Result()
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	return res
}

func TestStartCamera(t *testing.T) {
	h := newHarness(t, []*frame.Sample{uniform(warm)}, nil)

	if got := h.session.State(); got != Idle {
		t.Fatalf("initial state = %s, want idle", got)
	}
	if err := h.session.StartCamera(context.Background()); err != nil {
		t.Fatalf("StartCamera() error = %v", err)
	}
	if got := h.session.State(); got != CameraActive {
		t.Errorf("state = %s, want camera_active", got)
	}

	// Idempotent while active
	if err := h.session.StartCamera(context.Background()); err != nil {
		t.Errorf("second StartCamera() error = %v", err)
	}
	if starts, _ := h.source.Calls(); starts != 1 {
		t.Errorf("source started %d times, want 1", starts)
	}
}

func TestStartCamera_Failures(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(h *harness)
		wantAction string
	}{
		{
			name: "permission denied",
			setup: func(h *harness) {
				h.source.StartErr = &capture.CameraError{Kind: capture.PermissionDenied, Err: errors.New("EACCES")}
			},
			wantAction: ActionEnableCamera,
		},
		{
			name: "camera not found",
			setup: func(h *harness) {
				h.source.StartErr = &capture.CameraError{Kind: capture.NotFound, Err: errors.New("ENOENT")}
			},
			wantAction: ActionCheckDevice,
		},
		{
			name: "model load failure",
			setup: func(h *harness) {
				h.backend.LoadErr = errors.New("download failed")
			},
			wantAction: ActionReload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, []*frame.Sample{uniform(warm)}, nil)
			tt.setup(h)

			if err := h.session.StartCamera(context.Background()); err == nil {
				t.Fatal("expected StartCamera error")
			}

			st := h.session.Status()
			if st.State != Error {
				t.Fatalf("state = %s, want error", st.State)
			}
			if st.Affordance == nil || st.Affordance.Action != tt.wantAction {
				t.Errorf("affordance = %+v, want %s", st.Affordance, tt.wantAction)
			}

			if err := h.session.Acknowledge(); err != nil {
				t.Fatalf("Acknowledge() error = %v", err)
			}
			if got := h.session.State(); got != Idle {
				t.Errorf("state after acknowledge = %s, want idle", got)
			}
		})
	}
}

func TestStartCamera_Canceled(t *testing.T) {
	h := newHarness(t, []*frame.Sample{uniform(warm)}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.session.StartCamera(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("StartCamera() error = %v, want canceled", err)
	}
	if got := h.session.State(); got != Idle {
		t.Errorf("state = %s, want idle", got)
	}
}

func TestStop_DuringStart(t *testing.T) {
	h := newHarness(t, []*frame.Sample{uniform(warm)}, nil)
	h.backend.LoadDelay = 100 * time.Millisecond

	errc := make(chan error, 1)
	go func() { errc <- h.session.StartCamera(context.Background()) }()

	waitForState(t, h.session, CameraRequesting)
	h.session.Stop()

	if err := <-errc; !errors.Is(err, ErrStopped) {
		t.Errorf("StartCamera() error = %v, want ErrStopped", err)
	}
	if got := h.session.State(); got != Idle {
		t.Errorf("state = %s, want idle", got)
	}
	if h.source.Running() {
		t.Error("source should not be running after stop")
	}
}

func TestTick_DetectionSubstate(t *testing.T) {
	h := newHarness(t, []*frame.Sample{uniform(warm)}, nil)
	if err := h.session.StartCamera(context.Background()); err != nil {
		t.Fatalf("StartCamera() error = %v", err)
	}

	h.backend.SetResult(landmark.Set{})
	h.session.Tick()
	if got := h.session.Status().Detection; got != NoSubject {
		t.Errorf("detection = %s, want no_subject", got)
	}

	h.backend.SetResult(landmark.OpenPalmLandmarks())
	h.session.Tick()
	if got := h.session.Status().Detection; got != Detecting {
		t.Errorf("detection = %s, want detecting", got)
	}
}

func TestTick_NotActive(t *testing.T) {
	h := newHarness(t, []*frame.Sample{uniform(warm)}, nil)

	if h.session.Tick() {
		t.Error("Tick() applied a frame while idle")
	}
	if _, detects := h.backend.Calls(); detects != 0 {
		t.Errorf("detector called %d times while idle", detects)
	}
}

func TestTick_DropsOverlappingTick(t *testing.T) {
	h := newHarness(t, []*frame.Sample{uniform(warm)}, nil)
	if err := h.session.StartCamera(context.Background()); err != nil {
		t.Fatalf("StartCamera() error = %v", err)
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	h.backend.DetectFunc = func(f *frame.Sample) (landmark.Set, error) {
		close(entered)
		<-release
		return landmark.OpenPalmLandmarks(), nil
	}

	done := make(chan bool)
	go func() { done <- h.session.Tick() }()
	<-entered

	if h.session.Tick() {
		t.Error("overlapping Tick() should be dropped")
	}
	close(release)

	if !<-done {
		t.Error("first Tick() should apply its frame")
	}
	if _, detects := h.backend.Calls(); detects != 1 {
		t.Errorf("detector called %d times, want 1", detects)
	}
}

func TestTick_SourceLost(t *testing.T) {
	h := newHarness(t, []*frame.Sample{uniform(warm)}, nil)
	if err := h.session.StartCamera(context.Background()); err != nil {
		t.Fatalf("StartCamera() error = %v", err)
	}

	h.source.Lose(&capture.CameraError{Kind: capture.PermissionDenied, Err: errors.New("revoked")})
	h.session.Tick()

	st := h.session.Status()
	if st.State != Error {
		t.Fatalf("state = %s, want error", st.State)
	}
	var camErr *capture.CameraError
	if !errors.As(st.Err, &camErr) || camErr.Kind != capture.PermissionDenied {
		t.Errorf("error = %v, want permission denied", st.Err)
	}
	if _, stops := h.source.Calls(); stops != 1 {
		t.Errorf("source stopped %d times, want 1", stops)
	}
}

func TestTick_Lighting(t *testing.T) {
	h := newHarness(t, []*frame.Sample{uniform(dark)}, func(c *Config) {
		c.LightingStride = 1
	})
	if err := h.session.StartCamera(context.Background()); err != nil {
		t.Fatalf("StartCamera() error = %v", err)
	}

	h.session.Tick()

	st := h.session.Status()
	if !st.Lighting.IsLow {
		t.Errorf("lighting = %+v, want low", st.Lighting)
	}
	// Low light warns but does not block capture
	if err := h.session.Capture(); err != nil {
		t.Errorf("Capture() in low light error = %v", err)
	}
}

func TestCapture_RejectedWithoutSubject(t *testing.T) {
	h := newHarness(t, []*frame.Sample{uniform(warm)}, nil)
	if err := h.session.StartCamera(context.Background()); err != nil {
		t.Fatalf("StartCamera() error = %v", err)
	}
	h.backend.SetResult(landmark.Set{})
	h.session.Tick()

	events, unsubscribe := h.session.Subscribe()
	defer unsubscribe()

	err := h.session.Capture()

	var rejected *CaptureRejectedError
	if !errors.As(err, &rejected) || rejected.Reason != NoSubjectPresent {
		t.Fatalf("Capture() error = %v, want CaptureRejectedError", err)
	}
	if got := h.session.State(); got != CameraActive {
		t.Errorf("state = %s, want camera_active", got)
	}
	if !h.source.Running() {
		t.Error("rejected capture must not stop the camera")
	}

	select {
	case e := <-events:
		if e.Type != EventRejected || e.Affordance == nil || e.Affordance.Action != ActionReframe {
			t.Errorf("event = %+v, want capture_rejected with reframe prompt", e)
		}
	case <-time.After(time.Second):
		t.Error("no rejection event")
	}
}

func TestCapture_NotActive(t *testing.T) {
	h := newHarness(t, []*frame.Sample{uniform(warm)}, nil)
	if err := h.session.Capture(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Capture() error = %v, want ErrInvalidState", err)
	}
}

func TestCapture_FreezesFrame(t *testing.T) {
	h := newHarness(t, []*frame.Sample{uniform(warm), uniform(cool), uniform(cool)}, nil)
	if err := h.session.StartCamera(context.Background()); err != nil {
		t.Fatalf("StartCamera() error = %v", err)
	}

	if !h.session.Tick() {
		t.Fatal("first Tick() did not apply")
	}

	// The next detection is in flight when capture happens
	entered := make(chan struct{})
	release := make(chan struct{})
	h.backend.DetectFunc = func(f *frame.Sample) (landmark.Set, error) {
		close(entered)
		<-release
		return landmark.OpenPalmLandmarks(), nil
	}
	done := make(chan bool)
	go func() { done <- h.session.Tick() }()
	<-entered

	if err := h.session.Capture(); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	close(release)
	if <-done {
		t.Error("stale detection was applied after capture")
	}

	// Later ticks are ignored outright
	h.session.Tick()

	waitForState(t, h.session, Result)
	res, err := h.session.Result()
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}

	want := color.RGB{R: warm.R, G: warm.G, B: warm.B}
	if res.Color.Sampled.Skin != want {
		t.Errorf("sampled skin = %+v, want %+v from the captured frame", res.Color.Sampled.Skin, want)
	}
	if _, stops := h.source.Calls(); stops != 1 {
		t.Errorf("source stopped %d times, want 1", stops)
	}
}

func TestCapture_StagedProgress(t *testing.T) {
	h := newHarness(t, []*frame.Sample{uniform(warm)}, nil)
	if err := h.session.StartCamera(context.Background()); err != nil {
		t.Fatalf("StartCamera() error = %v", err)
	}

	events, unsubscribe := h.session.Subscribe()
	defer unsubscribe()

	captureResult(t, h)

	var stages []int
	var states []State
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-events:
			switch e.Type {
			case EventStage:
				stages = append(stages, e.Stage)
				if e.StageCount != 3 || e.Label == "" {
					t.Errorf("stage event = %+v", e)
				}
			case EventState:
				states = append(states, e.State)
			}
			if e.Type != EventResult {
				continue
			}
		case <-timeout:
			t.Fatal("timed out waiting for result event")
		}
		break
	}

	if len(stages) != 3 || stages[0] != 1 || stages[1] != 2 || stages[2] != 3 {
		t.Errorf("stages = %v, want [1 2 3]", stages)
	}
	wantStates := []State{Capturing, Analyzing, Result}
	if len(states) != len(wantStates) {
		t.Fatalf("states = %v, want %v", states, wantStates)
	}
	for i := range wantStates {
		if states[i] != wantStates[i] {
			t.Errorf("states = %v, want %v", states, wantStates)
			break
		}
	}
}

func TestStop_DuringAnalyzing(t *testing.T) {
	h := newHarness(t, []*frame.Sample{uniform(warm)}, func(c *Config) {
		c.StageDelay = time.Hour
	})
	if err := h.session.StartCamera(context.Background()); err != nil {
		t.Fatalf("StartCamera() error = %v", err)
	}
	h.session.Tick()
	if err := h.session.Capture(); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if got := h.session.State(); got != Analyzing {
		t.Fatalf("state = %s, want analyzing", got)
	}

	if err := h.session.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if got := h.session.State(); got != Idle {
		t.Errorf("state = %s, want idle", got)
	}
	if _, err := h.session.Result(); !errors.Is(err, ErrNoResult) {
		t.Errorf("Result() error = %v, want ErrNoResult", err)
	}
}

func TestReset(t *testing.T) {
	h := newHarness(t, []*frame.Sample{uniform(warm)}, nil)
	if err := h.session.StartCamera(context.Background()); err != nil {
		t.Fatalf("StartCamera() error = %v", err)
	}
	captureResult(t, h)

	if err := h.session.Reset(context.Background()); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if got := h.session.State(); got != CameraActive {
		t.Errorf("state = %s, want camera_active", got)
	}
	if _, err := h.session.Result(); !errors.Is(err, ErrNoResult) {
		t.Errorf("result survived reset: %v", err)
	}
	if starts, _ := h.source.Calls(); starts != 2 {
		t.Errorf("source started %d times, want 2", starts)
	}
	if got := h.session.Status().Detection; got != NoSubject {
		t.Errorf("detection = %s, want no_subject after reset", got)
	}
}

func TestReset_NotInResult(t *testing.T) {
	h := newHarness(t, []*frame.Sample{uniform(warm)}, nil)
	if err := h.session.Reset(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Reset() error = %v, want ErrInvalidState", err)
	}
}

func TestSave(t *testing.T) {
	h := newHarness(t, []*frame.Sample{uniform(warm)}, nil)

	if err := h.session.Save(context.Background()); !errors.Is(err, ErrNoResult) {
		t.Errorf("Save() before result error = %v, want ErrNoResult", err)
	}

	if err := h.session.StartCamera(context.Background()); err != nil {
		t.Fatalf("StartCamera() error = %v", err)
	}
	res := captureResult(t, h)

	if err := h.session.Save(context.Background()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if len(h.store.saved) != 1 || h.store.saved[0].ID != res.ID {
		t.Errorf("saved = %v, want the current result", h.store.saved)
	}
}

func TestSave_NoStore(t *testing.T) {
	h := newHarness(t, []*frame.Sample{uniform(warm)}, func(c *Config) {
		c.Snapshots = nil
	})
	if err := h.session.StartCamera(context.Background()); err != nil {
		t.Fatalf("StartCamera() error = %v", err)
	}
	captureResult(t, h)

	if err := h.session.Save(context.Background()); !errors.Is(err, ErrNoStore) {
		t.Errorf("Save() error = %v, want ErrNoStore", err)
	}
}

func TestExport(t *testing.T) {
	h := newHarness(t, []*frame.Sample{uniform(warm)}, nil)
	if err := h.session.StartCamera(context.Background()); err != nil {
		t.Fatalf("StartCamera() error = %v", err)
	}
	captureResult(t, h)

	t.Run("render failure keeps result", func(t *testing.T) {
		h.renderer.err = &render.RenderError{Kind: render.FontNotReady, Err: errors.New("no font")}
		defer func() { h.renderer.err = nil }()

		_, err := h.session.Export(context.Background())

		var renderErr *render.RenderError
		if !errors.As(err, &renderErr) {
			t.Fatalf("Export() error = %v, want RenderError", err)
		}
		if AffordanceFor(err).Action != ActionRetryExport {
			t.Errorf("affordance = %+v, want retry_export", AffordanceFor(err))
		}
		if got := h.session.State(); got != Result {
			t.Errorf("state = %s, want result", got)
		}
	})

	t.Run("canceled export is silent", func(t *testing.T) {
		events, unsubscribe := h.session.Subscribe()
		defer unsubscribe()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := h.session.Export(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Export() error = %v, want canceled", err)
		}
		select {
		case e := <-events:
			t.Errorf("unexpected event %+v", e)
		default:
		}
	})

	t.Run("retry succeeds", func(t *testing.T) {
		art, err := h.session.Export(context.Background())
		if err != nil {
			t.Fatalf("Export() error = %v", err)
		}
		if len(h.store.exported) != 1 || h.store.exported[0] != art.Filename {
			t.Errorf("export log = %v, want [%s]", h.store.exported, art.Filename)
		}
	})
}

func TestRunLoop_RateScheduler(t *testing.T) {
	h := newHarness(t, []*frame.Sample{uniform(warm)}, func(c *Config) {
		c.Scheduler = NewRateScheduler(200)
	})
	if err := h.session.StartCamera(context.Background()); err != nil {
		t.Fatalf("StartCamera() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.session.Status().Detection != Detecting {
		if time.Now().After(deadline) {
			t.Fatal("scheduler never ticked")
		}
		time.Sleep(time.Millisecond)
	}

	if err := h.session.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	_, before := h.backend.Calls()
	time.Sleep(30 * time.Millisecond)
	if _, after := h.backend.Calls(); after != before {
		t.Errorf("loop kept detecting after stop (%d -> %d)", before, after)
	}
}

func TestAffordanceFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"permission", &capture.CameraError{Kind: capture.PermissionDenied}, ActionEnableCamera},
		{"not found", &capture.CameraError{Kind: capture.NotFound}, ActionCheckDevice},
		{"busy", &capture.CameraError{Kind: capture.Unknown, Err: capture.ErrDeviceBusy}, ActionCheckDevice},
		{"model", &detector.ModelLoadError{Kind: detector.NetworkFailure}, ActionReload},
		{"rejected", &CaptureRejectedError{Topology: landmark.FaceMesh}, ActionReframe},
		{"render", &render.RenderError{Kind: render.UnsupportedStyle}, ActionRetryExport},
		{"other", errors.New("boom"), ActionDismiss},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AffordanceFor(tt.err); got.Action != tt.want {
				t.Errorf("AffordanceFor() = %+v, want %s", got, tt.want)
			}
		})
	}
}

func TestCaptureRejectedError_Prompt(t *testing.T) {
	e := &CaptureRejectedError{Topology: landmark.Hand}
	if got, want := e.Prompt(), "Position your hand in the frame"; got != want {
		t.Errorf("Prompt() = %q, want %q", got, want)
	}
}

func TestTick_DetectFailuresFailSession(t *testing.T) {
	h := newHarness(t, []*frame.Sample{uniform(warm)}, func(c *Config) {
		c.MaxDetectFailures = 3
	})
	if err := h.session.StartCamera(context.Background()); err != nil {
		t.Fatalf("StartCamera() error = %v", err)
	}
	events, unsubscribe := h.session.Subscribe()
	defer unsubscribe()

	// A short run of failures counts as frames without a subject
	h.backend.SetError(errors.New("read response: EOF"))
	h.session.Tick()
	h.session.Tick()
	if got := h.session.State(); got != CameraActive {
		t.Fatalf("state after 2 failures = %s, want camera_active", got)
	}
	if got := h.session.Status().Detection; got != NoSubject {
		t.Errorf("detection = %s, want no_subject", got)
	}

	// A success resets the run
	h.backend.SetError(nil)
	h.session.Tick()
	h.backend.SetError(errors.New("write length: broken pipe"))
	h.session.Tick()
	h.session.Tick()
	if got := h.session.State(); got != CameraActive {
		t.Fatalf("state after reset run = %s, want camera_active", got)
	}

	if h.session.Tick() {
		t.Error("Tick() that failed the session reported an applied frame")
	}
	if got := h.session.State(); got != Error {
		t.Fatalf("state = %s, want error", got)
	}

	st := h.session.Status()
	var loadErr *detector.ModelLoadError
	if !errors.As(st.Err, &loadErr) {
		t.Errorf("error = %v, want *detector.ModelLoadError", st.Err)
	}
	if st.Affordance == nil || st.Affordance.Action != ActionReload {
		t.Errorf("affordance = %+v, want reload", st.Affordance)
	}
	if _, stops := h.source.Calls(); stops != 1 {
		t.Errorf("source stopped %d times, want 1", stops)
	}
	if err := h.session.Capture(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Capture() after model loss = %v, want ErrInvalidState", err)
	}

	for {
		select {
		case e := <-events:
			if e.Type == EventError {
				if e.Affordance == nil || e.Affordance.Action != ActionReload {
					t.Errorf("error event affordance = %+v, want reload", e.Affordance)
				}
				return
			}
		case <-time.After(time.Second):
			t.Fatal("no error event published")
		}
	}
}

func TestPublish_SlowSubscriberKeepsStages(t *testing.T) {
	h := newHarness(t, []*frame.Sample{uniform(warm)}, nil)
	events, unsubscribe := h.session.Subscribe()
	defer unsubscribe()

	// Overflowing lighting updates are dropped without blocking
	for i := 0; i < subscriberBuffer+10; i++ {
		h.session.publish(Event{Type: EventLighting})
	}

	done := make(chan struct{})
	go func() {
		h.session.publish(Event{Type: EventStage, Stage: 1})
		close(done)
	}()

	var last Event
	for i := 0; i <= subscriberBuffer; i++ {
		select {
		case last = <-events:
		case <-time.After(time.Second):
			t.Fatalf("only %d events received", i)
		}
	}
	if last.Type != EventStage || last.Stage != 1 {
		t.Errorf("last event = %s/%d, want stage 1", last.Type, last.Stage)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish did not return after the subscriber caught up")
	}
}
