package resilience

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Pacer spaces outbound calls so that no more than the configured number of
// calls per second is released, enforced as a minimum inter-release interval
// of 1/N seconds (burst 1). It never drops or rejects a request: callers
// block until released or their context ends. State is in-memory only and
// resets on process restart.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer creates a pacer releasing at most callsPerSecond calls per
// second. Fractional rates are allowed (0.5 = one call every two seconds).
// A rate <= 0 disables pacing.
func NewPacer(callsPerSecond float64) *Pacer {
	limit := rate.Limit(callsPerSecond)
	if callsPerSecond <= 0 {
		limit = rate.Inf
	}
	return &Pacer{limiter: rate.NewLimiter(limit, 1)}
}

// Acquire blocks until the caller may proceed. The only failure mode is the
// caller's context ending while waiting.
func (p *Pacer) Acquire(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "resilience: rate limit wait")
	}
	return nil
}

// Limit returns the configured release rate in calls per second.
func (p *Pacer) Limit() float64 {
	return float64(p.limiter.Limit())
}
