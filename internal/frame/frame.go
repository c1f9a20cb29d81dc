// Package frame provides the immutable pixel buffer captured from a frame source.
package frame

import (
	"image"
	"image/color"
	"time"

	"golang.org/x/image/draw"
)

// Sample is a single captured frame. The pixel buffer is never mutated after
// construction; consumers that need to modify pixels must Clone first.
type Sample struct {
	pixels    *image.RGBA
	Width     int
	Height    int
	Timestamp time.Time
}

// FromImage copies img into a new Sample taken at ts.
// The copy guarantees the sample does not alias a buffer the source may reuse.
func FromImage(img image.Image, ts time.Time) *Sample {
	if img == nil {
		return nil
	}

	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	return &Sample{
		pixels:    rgba,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Timestamp: ts,
	}
}

// Uniform returns a width x height sample filled with c.
func Uniform(width, height int, c color.RGBA, ts time.Time) *Sample {
	rgba := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(rgba, rgba.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)

	return &Sample{
		pixels:    rgba,
		Width:     width,
		Height:    height,
		Timestamp: ts,
	}
}

// Image returns the sample as a read-only image.
func (s *Sample) Image() image.Image {
	return s.pixels
}

// At returns the color at pixel (x, y). Coordinates are clamped to the frame bounds.
func (s *Sample) At(x, y int) color.RGBA {
	x = clamp(x, 0, s.Width-1)
	y = clamp(y, 0, s.Height-1)
	return s.pixels.RGBAAt(x, y)
}

// Aspect returns width divided by height, or 1 for an empty sample.
func (s *Sample) Aspect() float64 {
	if s == nil || s.Height == 0 {
		return 1
	}
	return float64(s.Width) / float64(s.Height)
}

// Clone returns a deep copy of the sample.
func (s *Sample) Clone() *Sample {
	if s == nil {
		return nil
	}

	pix := make([]uint8, len(s.pixels.Pix))
	copy(pix, s.pixels.Pix)

	return &Sample{
		pixels: &image.RGBA{
			Pix:    pix,
			Stride: s.pixels.Stride,
			Rect:   s.pixels.Rect,
		},
		Width:     s.Width,
		Height:    s.Height,
		Timestamp: s.Timestamp,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
