package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer serializes generation calls and enforces a minimum delay between
// successive calls. Both AI-dependent analyzers pass through one shared Pacer
// so the backend sees at most one request per interval regardless of which
// analyzer issues it. The first call passes immediately; the delay applies
// between calls, so nothing waits after the last one.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer creates a pacer with the given minimum inter-call delay.
// A non-positive delay disables pacing.
func NewPacer(delay time.Duration) *Pacer {
	if delay <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(delay), 1)}
}

// Wait blocks until the next call is allowed or the context is cancelled.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
