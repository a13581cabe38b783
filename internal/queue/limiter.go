package queue

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RequestLimiter is the process-wide token bucket for outbound model calls.
// All Phase B workers share one instance so total request rate stays under
// the provider quota regardless of per-job concurrency.
type RequestLimiter struct {
	limiter *rate.Limiter
}

// NewRequestLimiter allows maxRequests per window with a burst of the full
// window allowance.
func NewRequestLimiter(maxRequests int, window time.Duration) *RequestLimiter {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if window <= 0 {
		window = time.Minute
	}

	return &RequestLimiter{
		limiter: rate.NewLimiter(rate.Every(window/time.Duration(maxRequests)), maxRequests),
	}
}

// Wait blocks until a token is available or the context is done
func (l *RequestLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether a token is available without blocking
func (l *RequestLimiter) Allow() bool {
	return l.limiter.Allow()
}
