// Package geometry classifies face and hand shapes from landmark proportions.
package geometry

import (
	"fmt"
	"math"

	"github.com/ayusman/glowlens/internal/landmark"
)

// Shape is a discrete geometry category.
type Shape string

// Face shapes, in tie-break order.
const (
	FaceOval    Shape = "oval"
	FaceRound   Shape = "round"
	FaceSquare  Shape = "square"
	FaceOblong  Shape = "oblong"
	FaceHeart   Shape = "heart"
	FaceDiamond Shape = "diamond"
)

// Hand shapes, in tie-break order.
const (
	HandBalanced Shape = "balanced"
	HandSlender  Shape = "slender"
	HandBroad    Shape = "broad"
	HandPetite   Shape = "petite"
)

// Ratio names reported in Profile.Ratios.
const (
	RatioLength   = "length_to_cheek"
	RatioJaw      = "jaw_to_cheek"
	RatioForehead = "forehead_to_cheek"
	RatioChin     = "chin_to_jaw"
	RatioFinger   = "finger_to_palm"
	RatioPalm     = "width_to_palm"
)

// tieEpsilon is the margin a later centroid must beat the current best by.
const tieEpsilon = 1e-9

// Profile is the result of classifying one landmark set.
type Profile struct {
	Shape    Shape              `json:"shape"`
	Ratios   map[string]float64 `json:"ratios"`
	Distance float64            `json:"distance"` // distance to the winning centroid
}

// centroid is the prototype ratio vector for a shape.
type centroid struct {
	shape  Shape
	ratios []float64
}

// Face centroids over (length, jaw, forehead, chin). Order is the tie-break order.
var faceCentroids = []centroid{
	{FaceOval, []float64{1.45, 0.80, 0.88, 0.55}},
	{FaceRound, []float64{1.05, 0.95, 0.95, 0.55}},
	{FaceSquare, []float64{1.05, 0.98, 0.97, 0.80}},
	{FaceOblong, []float64{1.70, 0.92, 0.92, 0.65}},
	{FaceHeart, []float64{1.35, 0.70, 1.00, 0.40}},
	{FaceDiamond, []float64{1.35, 0.75, 0.75, 0.45}},
}

// Hand centroids over (finger, palm width). Order is the tie-break order.
var handCentroids = []centroid{
	{HandBalanced, []float64{0.95, 0.80}},
	{HandSlender, []float64{1.15, 0.70}},
	{HandBroad, []float64{0.85, 1.00}},
	{HandPetite, []float64{0.75, 0.80}},
}

// FaceShapes lists every face shape in tie-break order.
func FaceShapes() []Shape {
	return shapes(faceCentroids)
}

// HandShapes lists every hand shape in tie-break order.
func HandShapes() []Shape {
	return shapes(handCentroids)
}

func shapes(cs []centroid) []Shape {
	out := make([]Shape, len(cs))
	for i, c := range cs {
		out[i] = c.shape
	}
	return out
}

// Classify dispatches on the set's topology. It panics on an empty set or an
// unknown topology.
func Classify(set landmark.Set) Profile {
	switch set.Topology.Name {
	case landmark.FaceMesh.Name:
		return ClassifyFace(set)
	case landmark.Hand.Name:
		return ClassifyHand(set)
	default:
		panic(fmt.Sprintf("geometry: unsupported topology %q", set.Topology.Name))
	}
}

// ClassifyFace maps face proportions to the nearest face shape.
//
// Ratios, all relative to cheekbone width unless noted:
//   - length: forehead top to chin
//   - jaw: jaw-angle width
//   - forehead: temple-to-temple width
//   - chin: chin width relative to jaw width
func ClassifyFace(set landmark.Set) Profile {
	set.MustMatch(landmark.FaceMesh)

	cheek := set.Distance(landmark.FaceLeftCheekbone, landmark.FaceRightCheekbone)
	jaw := set.Distance(landmark.FaceLeftJaw, landmark.FaceRightJaw)
	forehead := set.Distance(landmark.FaceLeftForehead, landmark.FaceRightForehead)
	length := set.Distance(landmark.FaceForeheadTop, landmark.FaceChin)
	chin := set.Distance(landmark.FaceLeftChin, landmark.FaceRightChin)

	vec := []float64{
		ratio(length, cheek),
		ratio(jaw, cheek),
		ratio(forehead, cheek),
		ratio(chin, jaw),
	}

	best, dist := nearest(vec, faceCentroids)

	return Profile{
		Shape: best,
		Ratios: map[string]float64{
			RatioLength:   vec[0],
			RatioJaw:      vec[1],
			RatioForehead: vec[2],
			RatioChin:     vec[3],
		},
		Distance: dist,
	}
}

// ClassifyHand maps hand proportions to the nearest hand shape.
// Finger length is the middle finger joint chain; palm length is wrist to
// middle MCP; palm width is index MCP to pinky MCP.
func ClassifyHand(set landmark.Set) Profile {
	set.MustMatch(landmark.Hand)

	palm := set.Distance(landmark.Wrist, landmark.MiddleMCP)
	finger := set.PathLength(landmark.MiddleMCP, landmark.MiddlePIP, landmark.MiddleDIP, landmark.MiddleTip)
	width := set.Distance(landmark.IndexMCP, landmark.PinkyMCP)

	vec := []float64{
		ratio(finger, palm),
		ratio(width, palm),
	}

	best, dist := nearest(vec, handCentroids)

	return Profile{
		Shape: best,
		Ratios: map[string]float64{
			RatioFinger: vec[0],
			RatioPalm:   vec[1],
		},
		Distance: dist,
	}
}

// nearest returns the centroid closest to vec. A later centroid replaces the
// current best only when it is closer by more than tieEpsilon, so near-ties
// resolve to the earlier entry.
func nearest(vec []float64, cs []centroid) (Shape, float64) {
	best := cs[0].shape
	bestDist := euclidean(vec, cs[0].ratios)

	for _, c := range cs[1:] {
		d := euclidean(vec, c.ratios)
		if d < bestDist-tieEpsilon {
			best = c.shape
			bestDist = d
		}
	}

	return best, bestDist
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// ratio avoids NaN and Inf from degenerate (collapsed) landmark sets.
func ratio(num, den float64) float64 {
	if den < 1e-9 {
		return 0
	}
	return num / den
}
