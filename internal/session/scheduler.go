package session

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/ayusman/glowlens/internal/capture"
)

// Scheduler paces the live detection loop. Wait blocks until the next tick
// is due or ctx is done.
type Scheduler interface {
	Wait(ctx context.Context) error
}

// RateScheduler ticks at a fixed rate without bursting.
type RateScheduler struct {
	limiter *rate.Limiter
}

// NewRateScheduler creates a scheduler ticking fps times per second.
// Values less than or equal to 0 fall back to capture.DefaultFPS.
func NewRateScheduler(fps float64) *RateScheduler {
	if fps <= 0 {
		fps = capture.DefaultFPS
	}
	return &RateScheduler{limiter: rate.NewLimiter(rate.Limit(fps), 1)}
}

// Wait blocks until the next tick.
func (r *RateScheduler) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
