// Package resilience implements the rate limiter, circuit breaker, retry
// policy, and fallback chain that wrap every provider call.
package resilience

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token-bucket limiter that also tracks header-derived
// backpressure hints from the provider, so a caller that hasn't yet
// exhausted its local bucket can still be told to wait out a server-side
// reset window. Grounded on goadesign-goa-ai's AdaptiveRateLimiter, which
// wraps golang.org/x/time/rate.Limiter with its own response-driven state.
type RateLimiter struct {
	limiter *rate.Limiter

	mu             sync.Mutex
	remaining      int
	hasRemaining   bool
	resetAt        time.Time
	retryAfter     time.Time
}

// NewRateLimiter builds a limiter with the given requests-per-second rate
// and burst capacity.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Acquire blocks until a token is available (from the local bucket) and
// until any server-signaled backpressure window has elapsed, honoring
// cancellation via ctx.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	if wait := r.estimatedWait(); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return r.limiter.Wait(ctx)
}

// EstimatedWaitMillis reports how long a caller would have to wait right
// now before Acquire would return, combining the local bucket's reservation
// delay with any outstanding server-signaled backpressure.
func (r *RateLimiter) EstimatedWaitMillis() int64 {
	wait := r.estimatedWait()
	reservation := r.limiter.Reserve()
	if !reservation.OK() {
		reservation.Cancel()
		return wait.Milliseconds()
	}
	delay := reservation.Delay()
	reservation.Cancel()
	if delay > wait {
		return delay.Milliseconds()
	}
	return wait.Milliseconds()
}

func (r *RateLimiter) estimatedWait() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var wait time.Duration
	if !r.retryAfter.IsZero() && r.retryAfter.After(now) {
		wait = r.retryAfter.Sub(now)
	}
	if r.hasRemaining && r.remaining == 0 && r.resetAt.After(now) {
		if d := r.resetAt.Sub(now); d > wait {
			wait = d
		}
	}
	return wait
}

// ObserveHeaders ingests the provider's rate-limit response headers,
// updating the backpressure prediction used by future Acquire calls.
// Idempotent and safe for concurrent use; each call only tightens or
// refreshes the known window, it never un-observes a prior signal from a
// stale, older response.
func (r *RateLimiter) ObserveHeaders(remainingRequests, resetRequestsSeconds, retryAfterSeconds string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if remainingRequests != "" {
		if n, err := strconv.Atoi(remainingRequests); err == nil {
			r.remaining = n
			r.hasRemaining = true
		}
	}
	if resetRequestsSeconds != "" {
		if secs, err := strconv.ParseFloat(resetRequestsSeconds, 64); err == nil {
			candidate := now.Add(time.Duration(secs * float64(time.Second)))
			if candidate.After(r.resetAt) {
				r.resetAt = candidate
			}
		}
	}
	if retryAfterSeconds != "" {
		if secs, err := strconv.ParseFloat(retryAfterSeconds, 64); err == nil {
			candidate := now.Add(time.Duration(secs * float64(time.Second)))
			if candidate.After(r.retryAfter) {
				r.retryAfter = candidate
			}
		}
	}
}
