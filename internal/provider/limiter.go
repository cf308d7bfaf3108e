package provider

import (
	"context"

	apperrors "github.com/kadirpekel/supervisor/internal/errors"
	"golang.org/x/time/rate"
)

// RateLimited wraps a Provider with a per-provider token-bucket
// throttle on dispatch, complementing the global concurrent-command
// cap in internal/concurrency.
type RateLimited struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps p so Execute waits for a token before
// dispatching. ratePerSecond and burst bound how often this provider
// may be dispatched; a burst of 1 serializes dispatch entirely.
func NewRateLimited(p Provider, ratePerSecond float64, burst int) *RateLimited {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{inner: p, limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

func (r *RateLimited) Name() string {
	return r.inner.Name()
}

func (r *RateLimited) Execute(ctx context.Context, req Request) (*Result, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.KindTransientIO, "rate limiter wait for provider %s", r.inner.Name())
	}
	return r.inner.Execute(ctx, req)
}
