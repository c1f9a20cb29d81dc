package analysis

import (
	"encoding/json"
	imgcolor "image/color"
	"testing"
	"time"

	"github.com/ayusman/glowlens/internal/catalog"
	"github.com/ayusman/glowlens/internal/color"
	"github.com/ayusman/glowlens/internal/frame"
	"github.com/ayusman/glowlens/internal/geometry"
	"github.com/ayusman/glowlens/internal/landmark"
)

func TestAnalyze_Face(t *testing.T) {
	a, err := New(catalog.MustLoad())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	f := frame.Uniform(400, 400, imgcolor.RGBA{R: 200, G: 160, B: 120, A: 255}, time.Now())
	res, err := a.Analyze("sess-1", f, landmark.RoundFaceLandmarks())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if res.Geometry.Shape != geometry.FaceRound {
		t.Errorf("Shape = %s, want %s", res.Geometry.Shape, geometry.FaceRound)
	}
	if res.Kind() != "face" {
		t.Errorf("Kind() = %s, want face", res.Kind())
	}
	if res.SessionID != "sess-1" {
		t.Errorf("SessionID = %s", res.SessionID)
	}
	if res.Recommendation.Title == "" {
		t.Error("expected recommendation copy")
	}
	if res.CreatedAt.IsZero() {
		t.Error("expected CreatedAt")
	}

	found := false
	for _, s := range color.Seasons() {
		if res.Color.Category == s {
			found = true
		}
	}
	if !found {
		t.Errorf("face analysis produced non-season category %s", res.Color.Category)
	}
}

func TestAnalyze_Hand(t *testing.T) {
	a, err := New(catalog.MustLoad())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	f := frame.Uniform(320, 240, imgcolor.RGBA{R: 90, G: 60, B: 45, A: 255}, time.Now())
	res, err := a.Analyze("sess-2", f, landmark.OpenPalmLandmarks())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if res.Geometry.Shape != geometry.HandBalanced {
		t.Errorf("Shape = %s, want %s", res.Geometry.Shape, geometry.HandBalanced)
	}
	if res.Color.Category != color.Deep {
		t.Errorf("Category = %s, want %s", res.Color.Category, color.Deep)
	}
}

func TestResult_JSONSnapshot(t *testing.T) {
	a, _ := New(catalog.MustLoad())
	f := frame.Uniform(100, 100, imgcolor.RGBA{R: 180, G: 140, B: 110, A: 255}, time.Now())

	res, err := a.Analyze("sess-3", f, landmark.OvalFaceLandmarks())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var back Result
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.ID != res.ID || back.Geometry.Shape != res.Geometry.Shape || back.Color.Category != res.Color.Category {
		t.Errorf("snapshot lost fields: %+v", back)
	}
}
