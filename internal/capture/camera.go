package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/glowlens/internal/frame"
	"github.com/ayusman/glowlens/internal/logger"
)

// Camera streams frames from a camera device using GoCV.
type Camera struct {
	constraints Constraints
	registry    *Registry
	log         logrus.FieldLogger
	stat        func(string) (os.FileInfo, error)

	// opMu serializes Start and Stop
	opMu    sync.Mutex
	capture *gocv.VideoCapture
	cancel  context.CancelFunc
	done    chan struct{}

	mu      sync.Mutex
	running bool
	latest  *frame.Sample
	lostErr *CameraError
}

// lostAfter is how many seconds of failed reads mark the device as lost.
const lostAfter = 3

// NewCamera creates a Camera for the given constraints. Devices are claimed
// through reg; pass nil to skip exclusivity checks.
func NewCamera(c Constraints, reg *Registry, log logrus.FieldLogger) *Camera {
	return &Camera{
		constraints: c.withDefaults(),
		registry:    reg,
		log:         logger.OrDiscard(log).WithField("device", c.DeviceID),
		stat:        os.Stat,
	}
}

// Constraints returns the effective camera request.
func (c *Camera) Constraints() Constraints {
	return c.constraints
}

// Start opens the device and begins reading frames in the background.
func (c *Camera) Start(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.Running() {
		return nil
	}
	if c.capture != nil {
		// The read loop gave up on a lost device
		c.stopLocked()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dev := c.constraints.DeviceID
	if err := c.registry.Claim(dev); err != nil {
		return &CameraError{Kind: Unknown, Device: dev, Err: err}
	}

	vc, err := gocv.OpenVideoCapture(dev)
	if err != nil {
		c.registry.Release(dev)
		return c.classifyOpenError(err)
	}
	if !vc.IsOpened() {
		vc.Close()
		c.registry.Release(dev)
		return c.classifyOpenError(errors.New("device did not open"))
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(c.constraints.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(c.constraints.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(c.constraints.FPS))

	// The open may have blocked on a permission prompt
	if err := ctx.Err(); err != nil {
		vc.Close()
		c.registry.Release(dev)
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.capture = vc
	c.cancel = cancel
	c.done = make(chan struct{})

	c.mu.Lock()
	c.running = true
	c.latest = nil
	c.lostErr = nil
	c.mu.Unlock()

	go c.readLoop(loopCtx, vc, c.done)

	c.log.WithFields(logrus.Fields{
		"width":  c.constraints.Width,
		"height": c.constraints.Height,
		"fps":    c.constraints.FPS,
		"facing": c.constraints.Facing,
	}).Debug("camera started")

	return nil
}

// Stop halts the read loop and closes the device. The device is released
// before Stop returns.
func (c *Camera) Stop() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.capture == nil {
		return nil
	}
	return c.stopLocked()
}

func (c *Camera) stopLocked() error {
	c.mu.Lock()
	c.running = false
	c.latest = nil
	c.mu.Unlock()

	c.cancel()
	<-c.done

	err := c.capture.Close()
	c.capture = nil
	c.cancel = nil
	c.done = nil
	c.registry.Release(c.constraints.DeviceID)

	c.log.Debug("camera stopped")
	return err
}

// CurrentFrame returns the latest frame read from the device.
func (c *Camera) CurrentFrame() (*frame.Sample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.lostErr != nil || c.latest == nil {
		return nil, false
	}
	return c.latest, true
}

// Running reports whether the camera is streaming.
func (c *Camera) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && c.lostErr == nil
}

// Err reports why a started camera stopped delivering frames, or nil.
func (c *Camera) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lostErr == nil {
		return nil
	}
	return c.lostErr
}

func (c *Camera) readLoop(ctx context.Context, vc *gocv.VideoCapture, done chan struct{}) {
	defer close(done)

	mat := gocv.NewMat()
	defer mat.Close()

	ticker := time.NewTicker(time.Second / time.Duration(c.constraints.FPS))
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if ok := vc.Read(&mat); !ok || mat.Empty() {
			failures++
			if failures >= lostAfter*c.constraints.FPS {
				lost := c.classifyOpenError(ErrNotRunning)
				c.log.WithError(lost).Warn("camera stopped delivering frames")
				c.mu.Lock()
				c.lostErr = lost
				c.latest = nil
				c.mu.Unlock()
				return
			}
			continue
		}
		failures = 0

		img, err := mat.ToImage()
		if err != nil {
			c.log.WithError(err).Warn("convert frame")
			continue
		}

		s := frame.FromImage(img, time.Now())

		c.mu.Lock()
		if c.running {
			c.latest = s
		}
		c.mu.Unlock()
	}
}

// classifyOpenError maps an open failure to a CameraError. OpenCV does not
// report why a device failed to open, so on Linux the device node is probed.
func (c *Camera) classifyOpenError(err error) *CameraError {
	dev := c.constraints.DeviceID
	kind := Unknown

	if runtime.GOOS == "linux" {
		kind = probeDevice(c.stat, fmt.Sprintf("/dev/video%d", dev))
	}

	return &CameraError{Kind: kind, Device: dev, Err: err}
}

func probeDevice(stat func(string) (os.FileInfo, error), path string) CameraErrorKind {
	f, err := stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return NotFound
	case errors.Is(err, os.ErrPermission):
		return PermissionDenied
	case err != nil:
		return Unknown
	}

	// A node we cannot open for reading is a permission problem
	if f.Mode().Perm()&0o444 == 0 {
		return PermissionDenied
	}
	fh, err := os.Open(path)
	if errors.Is(err, os.ErrPermission) {
		return PermissionDenied
	}
	if fh != nil {
		fh.Close()
	}
	return Unknown
}
