package e2e

import (
	"context"
	"encoding/json"
	"image"
	imgcolor "image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/glowlens/internal/analysis"
	"github.com/ayusman/glowlens/internal/app"
	"github.com/ayusman/glowlens/internal/capture"
	"github.com/ayusman/glowlens/internal/catalog"
	"github.com/ayusman/glowlens/internal/config"
	"github.com/ayusman/glowlens/internal/detector"
	"github.com/ayusman/glowlens/internal/frame"
	"github.com/ayusman/glowlens/internal/landmark"
	"github.com/ayusman/glowlens/internal/render"
	"github.com/ayusman/glowlens/internal/session"
	"github.com/ayusman/glowlens/internal/store"
)

var (
	skinTone = imgcolor.RGBA{R: 214, G: 170, B: 140, A: 255}
	hairTone = imgcolor.RGBA{R: 60, G: 40, B: 30, A: 255}
)

// portrait is a skin-colored oval on a dark background.
func portrait(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	cx, cy := float64(w)/2, float64(h)/2
	rx, ry := float64(w)*0.35, float64(h)*0.42
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := (float64(x)-cx)/rx, (float64(y)-cy)/ry
			if dx*dx+dy*dy <= 1 {
				img.SetRGBA(x, y, skinTone)
			} else {
				img.SetRGBA(x, y, hairTone)
			}
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func settings(dataDir string) *config.Config {
	return &config.Config{
		Addr:           ":0",
		DataDir:        dataDir,
		FPS:            60,
		LightingStride: 30,
		FaceLowLight:   50,
		HandLowLight:   60,
		StageDelay:     time.Millisecond,
		MinConfidence:  0.5,
		LogLevel:       "info",
	}
}

// TestE2E_StillImageAnalysis runs the offline path: a photo on disk, a
// precomputed landmark file, a saved snapshot and an exported card.
func TestE2E_StillImageAnalysis(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}
	ctx := context.Background()
	dir := t.TempDir()

	imgPath := filepath.Join(dir, "selfie.png")
	writePNG(t, imgPath, portrait(480, 600))
	lmPath := filepath.Join(dir, "landmarks.json")
	writeJSON(t, lmPath, landmark.OvalFaceLandmarks())

	src, err := capture.LoadStill(imgPath)
	if err != nil {
		t.Fatalf("LoadStill() error = %v", err)
	}
	adapter := detector.NewAdapter(detector.NewFileBackend(lmPath), detector.Config{Topology: landmark.FaceMesh}, nil)
	analyzer, err := analysis.New(catalog.MustLoad())
	if err != nil {
		t.Fatalf("analysis.New() error = %v", err)
	}
	dbPath := filepath.Join(dir, "glowlens.db")
	st, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}

	sess, err := session.New(session.Config{
		Source:     src,
		Detector:   adapter,
		Analyzer:   analyzer,
		Renderer:   render.New(0),
		Snapshots:  st,
		StageDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}
	defer sess.Stop()

	events, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	if err := sess.StartCamera(ctx); err != nil {
		t.Fatalf("StartCamera() error = %v", err)
	}
	if !sess.Tick() {
		t.Fatal("Tick() did not process the still")
	}
	if err := sess.Capture(); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}

	var stages []int
	var res *analysis.Result
	timeout := time.After(5 * time.Second)
	for res == nil {
		select {
		case e := <-events:
			switch e.Type {
			case session.EventStage:
				stages = append(stages, e.Stage)
			case session.EventResult:
				res = e.Result
			}
		case <-timeout:
			t.Fatalf("no result, state = %s", sess.State())
		}
	}

	t.Run("StagesShown", func(t *testing.T) {
		if len(stages) != 3 {
			t.Errorf("stages = %v, want 3", stages)
		}
	})

	t.Run("SkinSampledFromImage", func(t *testing.T) {
		got := res.Color.Sampled.Skin
		if absDiff(got.R, skinTone.R) > 12 || absDiff(got.G, skinTone.G) > 12 || absDiff(got.B, skinTone.B) > 12 {
			t.Errorf("skin = %s, want near %02x%02x%02x", got.Hex(), skinTone.R, skinTone.G, skinTone.B)
		}
	})

	t.Run("ExportCard", func(t *testing.T) {
		art, err := sess.Export(ctx)
		if err != nil {
			t.Fatalf("Export() error = %v", err)
		}
		if art.Width != render.Width || art.Height != render.Height {
			t.Errorf("card = %dx%d", art.Width, art.Height)
		}
		if !strings.HasPrefix(art.Filename, "glowlens-face-") {
			t.Errorf("filename = %s", art.Filename)
		}
	})

	t.Run("SnapshotSurvivesReopen", func(t *testing.T) {
		if err := sess.Save(ctx); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		st.Close()

		reopened, err := store.New(dbPath)
		if err != nil {
			t.Fatalf("reopen store: %v", err)
		}
		defer reopened.Close()

		snap, err := reopened.Snapshots().Get(ctx, "face")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		got, err := snap.Result()
		if err != nil {
			t.Fatalf("Result() error = %v", err)
		}
		if got.ID != res.ID || got.Geometry.Shape != res.Geometry.Shape {
			t.Errorf("snapshot = %s/%s, want %s/%s", got.ID, got.Geometry.Shape, res.ID, res.Geometry.Shape)
		}

		exports, err := reopened.Exports().List(ctx, 0)
		if err != nil || len(exports) != 1 {
			t.Errorf("exports = %v, %v; want one logged export", exports, err)
		}
	})
}

// TestE2E_LiveSessionOverHTTP drives the hosted app the way the browser
// does: start over the API, follow the websocket, capture and fetch the card.
func TestE2E_LiveSessionOverHTTP(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}
	dataDir := t.TempDir()

	newApp := func() *app.App {
		a, err := app.New(app.Config{
			Settings: settings(dataDir),
			NewSource: func(tp landmark.Topology, _ *capture.Registry) capture.FrameSource {
				f := frame.FromImage(portrait(320, 400), time.Now())
				return capture.NewMockSource([]*frame.Sample{f}, true)
			},
			NewBackend: func(tp landmark.Topology) detector.Backend {
				b := detector.NewMockBackend(tp)
				if tp == landmark.Hand {
					b.SetResult(landmark.OpenPalmLandmarks())
				} else {
					b.SetResult(landmark.RoundFaceLandmarks())
				}
				return b
			},
		})
		if err != nil {
			t.Fatalf("app.New() error = %v", err)
		}
		return a
	}

	a := newApp()
	ts := httptest.NewServer(a.Server(""))
	client := ts.Client()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/sessions/face/events", nil)
	if err != nil {
		t.Fatalf("dial events: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	// next reads events until one matches
	next := func(match func(e *session.Event) bool) session.Event {
		t.Helper()
		for {
			var e session.Event
			if err := conn.ReadJSON(&e); err != nil {
				t.Fatalf("read event: %v", err)
			}
			if match(&e) {
				return e
			}
		}
	}
	var hello map[string]any
	if err := conn.ReadJSON(&hello); err != nil || hello["type"] != "status" {
		t.Fatalf("status message = %v, %v", hello, err)
	}

	post := func(path string) int {
		t.Helper()
		resp, err := client.Post(ts.URL+path, "application/json", nil)
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := post("/api/sessions/face/start"); code != http.StatusOK {
		t.Fatalf("start = %d", code)
	}
	next(func(e *session.Event) bool {
		return e.Type == session.EventDetection && e.Detection == session.Detecting
	})

	if code := post("/api/sessions/face/capture"); code != http.StatusOK {
		t.Fatalf("capture = %d", code)
	}
	result := next(func(e *session.Event) bool { return e.Type == session.EventResult })
	if result.Result == nil || result.Result.Topology != landmark.FaceMesh {
		t.Fatalf("result event = %+v", result.Result)
	}

	resp, err := client.Get(ts.URL + "/api/sessions/face/export")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/jpeg" {
		t.Errorf("export = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	if code := post("/api/sessions/face/save"); code != http.StatusOK {
		t.Fatalf("save = %d", code)
	}

	// Restart the host; the saved result is still there
	ts.Close()
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	b := newApp()
	defer b.Close()
	ts2 := httptest.NewServer(b.Server(""))
	defer ts2.Close()

	resp, err = ts2.Client().Get(ts2.URL + "/api/snapshots/face")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	defer resp.Body.Close()
	var snap struct {
		Result analysis.Result `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Result.ID != result.Result.ID {
		t.Errorf("snapshot result = %s, want %s", snap.Result.ID, result.Result.ID)
	}
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
