package resilience

import "time"

// Snapshot captures the adaptive backpressure/breaker state for one provider
// at a point in time, for exposure through observability/status endpoints.
// It is read-only: nothing in this package mutates a Snapshot after
// building it.
type Snapshot struct {
	ProviderID        string
	BreakerState      string
	EstimatedWaitMS   int64
	RemainingRequests int
	HasRemaining      bool
	ResetAt           time.Time
	RetryAfter        time.Time
}

// Observe builds a Snapshot from a limiter and breaker pair. Either may be
// nil, in which case the corresponding fields are left at their zero value.
func Observe(providerID string, limiter *RateLimiter, breaker *Breaker) Snapshot {
	snap := Snapshot{ProviderID: providerID}
	if breaker != nil {
		snap.BreakerState = breaker.State()
	}
	if limiter != nil {
		limiter.mu.Lock()
		snap.RemainingRequests = limiter.remaining
		snap.HasRemaining = limiter.hasRemaining
		snap.ResetAt = limiter.resetAt
		snap.RetryAfter = limiter.retryAfter
		limiter.mu.Unlock()
		snap.EstimatedWaitMS = limiter.EstimatedWaitMillis()
	}
	return snap
}
