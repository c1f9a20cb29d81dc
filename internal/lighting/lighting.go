// Package lighting estimates scene brightness from downscaled frames.
package lighting

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/ayusman/glowlens/internal/frame"
)

// Lighting constants
const (
	// SampleSize is the edge length frames are downscaled to before averaging.
	SampleSize = 100
	// FaceThreshold is the low-light cutoff for face analysis on a 0-255 scale.
	FaceThreshold = 50
	// HandThreshold is the low-light cutoff for hand analysis on a 0-255 scale.
	HandThreshold = 60
	// DefaultStride is how many processed frames pass between samples.
	DefaultStride = 30
)

// State is the most recent brightness estimate.
type State struct {
	AverageLuminance float64 `json:"average_luminance"`
	IsLow            bool    `json:"is_low"`
}

// Monitor turns a frame into a State. It holds no mutable state and is safe
// for concurrent use.
type Monitor struct {
	threshold float64
	size      int
}

// NewMonitor creates a Monitor flagging frames whose mean luminance is below threshold.
func NewMonitor(threshold float64) *Monitor {
	return &Monitor{
		threshold: threshold,
		size:      SampleSize,
	}
}

// Threshold returns the low-light cutoff.
func (m *Monitor) Threshold() float64 {
	return m.threshold
}

// Sample estimates the brightness of f.
//
// Algorithm:
// 1. Downscale the frame to 100x100 with nearest-neighbour sampling
// 2. Average (R+G+B)/3 over all pixels
// 3. isLow = average < threshold
func (m *Monitor) Sample(f *frame.Sample) State {
	if f == nil || f.Width == 0 || f.Height == 0 {
		return State{IsLow: true}
	}

	small := image.NewRGBA(image.Rect(0, 0, m.size, m.size))
	draw.NearestNeighbor.Scale(small, small.Bounds(), f.Image(), f.Image().Bounds(), draw.Src, nil)

	var sum float64
	pix := small.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		sum += (float64(pix[i]) + float64(pix[i+1]) + float64(pix[i+2])) / 3
	}
	avg := sum / float64(m.size*m.size)

	return State{
		AverageLuminance: avg,
		IsLow:            avg < m.threshold,
	}
}

// Gate decides on which processed frames the monitor runs.
type Gate struct {
	stride int
	count  int
}

// NewGate creates a gate that opens on the first frame and every stride-th frame after.
// Values less than or equal to 0 fall back to DefaultStride.
func NewGate(stride int) *Gate {
	if stride <= 0 {
		stride = DefaultStride
	}
	return &Gate{stride: stride}
}

// Next records one processed frame and reports whether lighting should be sampled on it.
func (g *Gate) Next() bool {
	due := g.count%g.stride == 0
	g.count++
	return due
}

// Reset restarts the stride so the next frame is sampled.
func (g *Gate) Reset() {
	g.count = 0
}
