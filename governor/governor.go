// Package governor implements the Rate Governor: a shared concurrency
// semaphore paired with a token-bucket rate limiter, bounding both the
// number of simultaneous in-flight calls and requests issued per second
// across all workers.
package governor

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

// ErrCancelled is returned by Acquire when ctx is done before a permit is
// granted.
var ErrCancelled = errors.New("governor: cancelled")

// Governor bounds concurrent in-flight calls and requests-per-second.
type Governor struct {
	sem     chan struct{}
	limiter *rate.Limiter
}

// New creates a Governor with the given concurrency cap and
// requests-per-second bucket capacity. The bucket's burst equals its
// refill rate, capped at its own capacity.
func New(maxConcurrent int, maxRequestsPerSecond float64) *Governor {
	burst := int(maxRequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Governor{
		sem:     make(chan struct{}, maxConcurrent),
		limiter: rate.NewLimiter(rate.Limit(maxRequestsPerSecond), burst),
	}
}

// Permit is a scoped acquisition: exactly one Release call is required,
// guaranteed via defer at the call site.
type Permit struct {
	g *Governor
}

// Acquire blocks until a concurrency slot and a rate-bucket token are both
// available, then returns a Permit. Returns ErrCancelled immediately if
// ctx is done first.
func (g *Governor) Acquire(ctx context.Context) (*Permit, error) {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ErrCancelled
	}

	if err := g.limiter.Wait(ctx); err != nil {
		<-g.sem
		return nil, ErrCancelled
	}

	return &Permit{g: g}, nil
}

// Release returns the concurrency slot. The rate-bucket token is never
// returned: tokens are consumed, not loaned.
func (p *Permit) Release() {
	<-p.g.sem
}
