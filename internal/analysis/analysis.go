// Package analysis combines geometry and color classification of a frozen
// frame into a single result.
package analysis

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/glowlens/internal/catalog"
	"github.com/ayusman/glowlens/internal/color"
	"github.com/ayusman/glowlens/internal/frame"
	"github.com/ayusman/glowlens/internal/geometry"
	"github.com/ayusman/glowlens/internal/landmark"
)

// Result is the outcome of one analysis run. It is immutable once created.
type Result struct {
	ID             uuid.UUID              `json:"id"`
	SessionID      string                 `json:"session_id"`
	Topology       landmark.Topology      `json:"topology"`
	Geometry       geometry.Profile       `json:"geometry"`
	Color          color.Profile          `json:"color"`
	Recommendation catalog.Recommendation `json:"recommendation"`
	CreatedAt      time.Time              `json:"created_at"`
}

// Kind returns "face" or "hand".
func (r *Result) Kind() string {
	return r.Topology.Kind()
}

// Analyzer runs both classifiers against a frozen frame.
type Analyzer struct {
	catalog *catalog.Catalog
	colors  *color.Classifier
	now     func() time.Time
}

// New creates an Analyzer backed by cat.
func New(cat *catalog.Catalog) (*Analyzer, error) {
	colors, err := color.New(cat)
	if err != nil {
		return nil, err
	}
	return &Analyzer{
		catalog: cat,
		colors:  colors,
		now:     time.Now,
	}, nil
}

// Analyze classifies the (frame, landmarks) pair. The landmark set must be a
// non-empty detection; passing anything else panics.
func (a *Analyzer) Analyze(sessionID string, f *frame.Sample, set landmark.Set) (*Result, error) {
	geo := geometry.Classify(set)
	col := a.colors.Classify(f, set)

	rec, err := a.catalog.Recommendation(set.Topology.Kind(), string(geo.Shape))
	if err != nil {
		return nil, fmt.Errorf("recommendation for %s: %w", geo.Shape, err)
	}

	return &Result{
		ID:             uuid.New(),
		SessionID:      sessionID,
		Topology:       set.Topology,
		Geometry:       geo,
		Color:          col,
		Recommendation: rec,
		CreatedAt:      a.now().UTC(),
	}, nil
}
