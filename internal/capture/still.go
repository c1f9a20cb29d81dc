package capture

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/ayusman/glowlens/internal/frame"
)

// StillSource serves a single image as a never-changing stream. It backs
// offline analysis of photos.
type StillSource struct {
	sample *frame.Sample

	mu      sync.Mutex
	running bool
}

// NewStillSource wraps an existing frame.
func NewStillSource(s *frame.Sample) *StillSource {
	return &StillSource{sample: s}
}

// LoadStill decodes an image file (JPEG, PNG, WebP, BMP or TIFF).
func LoadStill(path string) (*StillSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}

	info, err := f.Stat()
	ts := time.Now()
	if err == nil {
		ts = info.ModTime()
	}

	s := frame.FromImage(img, ts)
	if s.Width == 0 || s.Height == 0 {
		return nil, fmt.Errorf("decode image %s: empty %s image", path, format)
	}

	return NewStillSource(s), nil
}

// Start marks the source running.
func (s *StillSource) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	return nil
}

// Stop marks the source stopped.
func (s *StillSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

// CurrentFrame returns the still image while running.
func (s *StillSource) CurrentFrame() (*frame.Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.sample == nil {
		return nil, false
	}
	return s.sample, true
}

// Running reports whether the source is started.
func (s *StillSource) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Frame returns the wrapped image regardless of running state.
func (s *StillSource) Frame() *frame.Sample {
	return s.sample
}
