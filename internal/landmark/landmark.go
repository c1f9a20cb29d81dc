// Package landmark defines landmark topologies and the point sets a detection model returns.
package landmark

import (
	"fmt"
	"math"
)

// Topology is the fixed, versioned layout a detection model returns for a subject type.
type Topology struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// Supported topologies.
var (
	// FaceMesh follows the MediaPipe face mesh layout without iris refinement.
	// See: https://developers.google.com/mediapipe/solutions/vision/face_landmarker
	FaceMesh = Topology{Name: "face_mesh_v1", Points: 468}

	// Hand follows the MediaPipe hand landmark layout.
	// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
	Hand = Topology{Name: "hand_v1", Points: 21}
)

// Kind returns the subject name used in user-facing copy and storage keys.
func (t Topology) Kind() string {
	switch t.Name {
	case FaceMesh.Name:
		return "face"
	case Hand.Name:
		return "hand"
	default:
		return t.Name
	}
}

// ByKind resolves "face" or "hand" to its topology.
func ByKind(kind string) (Topology, error) {
	switch kind {
	case "face":
		return FaceMesh, nil
	case "hand":
		return Hand, nil
	default:
		return Topology{}, fmt.Errorf("unknown topology %q", kind)
	}
}

// Point is a normalized landmark position. X and Y are in [0,1] relative to
// frame width and height; Z is the model's relative depth.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Set is the output of one detection. It is either empty (no subject) or holds
// exactly Topology.Points points.
type Set struct {
	Topology Topology `json:"topology"`
	Points   []Point  `json:"points"`
	// Aspect is the source frame's width/height, used to make distances isotropic.
	Aspect float64 `json:"aspect"`
	Score  float64 `json:"score"`
}

// Empty reports whether the set carries no detection.
func (s Set) Empty() bool {
	return len(s.Points) == 0
}

// Validate checks the set is empty or matches its topology's length.
func (s Set) Validate() error {
	if s.Empty() || len(s.Points) == s.Topology.Points {
		return nil
	}
	return fmt.Errorf("landmark set has %d points, topology %s expects %d",
		len(s.Points), s.Topology.Name, s.Topology.Points)
}

// MustMatch panics unless the set is a non-empty detection of topology t.
// Classifiers call it at entry; a mismatch is a caller bug, not a runtime condition.
func (s Set) MustMatch(t Topology) {
	if s.Empty() {
		panic(fmt.Sprintf("landmark: empty set passed where %s detection is required", t.Name))
	}
	if s.Topology.Name != t.Name || len(s.Points) != t.Points {
		panic(fmt.Sprintf("landmark: got %s with %d points, want %s with %d",
			s.Topology.Name, len(s.Points), t.Name, t.Points))
	}
}

// Distance returns the aspect-corrected 2D distance between points i and j,
// expressed in units of frame height.
func (s Set) Distance(i, j int) float64 {
	a, b := s.Points[i], s.Points[j]
	aspect := s.Aspect
	if aspect <= 0 {
		aspect = 1
	}
	dx := (a.X - b.X) * aspect
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// PathLength sums Distance along consecutive indices.
func (s Set) PathLength(indices ...int) float64 {
	var total float64
	for k := 1; k < len(indices); k++ {
		total += s.Distance(indices[k-1], indices[k])
	}
	return total
}

// Centroid returns the mean position of the given indices.
func (s Set) Centroid(indices ...int) Point {
	var c Point
	if len(indices) == 0 {
		return c
	}
	for _, i := range indices {
		c.X += s.Points[i].X
		c.Y += s.Points[i].Y
		c.Z += s.Points[i].Z
	}
	n := float64(len(indices))
	return Point{X: c.X / n, Y: c.Y / n, Z: c.Z / n}
}
