package detector

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/glowlens/internal/landmark"
)

func writeLandmarks(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "landmarks.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileBackend_Load(t *testing.T) {
	tests := []struct {
		name string
		body any
		want landmark.Topology
	}{
		{name: "full set", body: landmark.OpenPalmLandmarks(), want: landmark.Hand},
		{name: "hand inferred from count", body: map[string]any{"points": landmark.OpenPalmLandmarks().Points}, want: landmark.Hand},
		{name: "face inferred from count", body: map[string]any{"points": landmark.RoundFaceLandmarks().Points}, want: landmark.FaceMesh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewFileBackend(writeLandmarks(t, tt.body))
			got, err := b.Load(context.Background())
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Load() = %s, want %s", got.Name, tt.want.Name)
			}

			set, err := b.Detect(testFrame())
			if err != nil {
				t.Fatalf("Detect() error = %v", err)
			}
			if len(set.Points) != tt.want.Points || set.Score <= 0 || set.Aspect <= 0 {
				t.Errorf("Detect() = %d points, score %v, aspect %v", len(set.Points), set.Score, set.Aspect)
			}
		})
	}
}

func TestFileBackend_LoadErrors(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		kind LoadErrorKind
	}{
		{name: "missing file", path: filepath.Join(t.TempDir(), "none.json"), kind: NetworkFailure},
		{name: "invalid json", path: bad, kind: UnsupportedDevice},
		{name: "unknown point count", path: writeLandmarks(t, map[string]any{"points": []landmark.Point{{X: 1}}}), kind: TopologyMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFileBackend(tt.path).Load(context.Background())
			var loadErr *ModelLoadError
			if !errors.As(err, &loadErr) {
				t.Fatalf("Load() error = %v, want ModelLoadError", err)
			}
			if loadErr.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", loadErr.Kind, tt.kind)
			}
		})
	}
}

func TestFileBackend_ThroughAdapter(t *testing.T) {
	path := writeLandmarks(t, landmark.OpenPalmLandmarks())

	// A face adapter rejects a hand file
	a := NewAdapter(NewFileBackend(path), Config{Topology: landmark.FaceMesh}, nil)
	if err := a.Load(context.Background()); !errors.Is(err, ErrTopologyMismatch) {
		t.Errorf("Load() error = %v, want ErrTopologyMismatch", err)
	}

	a = NewAdapter(NewFileBackend(path), Config{Topology: landmark.Hand}, nil)
	if err := a.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	set, err := a.Detect(testFrame())
	if err != nil || set.Empty() {
		t.Errorf("Detect() = %v, %v; want the file's landmarks", set, err)
	}
}
