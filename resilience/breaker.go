package resilience

import (
	"time"

	"github.com/sony/gobreaker"

	"github.com/aiproto/runtime/errorclass"
)

// Breaker wraps a gobreaker.TwoStepCircuitBreaker, counting failures only
// for classified errors in the "server" or "rate" category, per spec.md
// §4.6 ("client-category errors do not affect the breaker"). The two-step
// form (Allow/done) is used instead of Execute because the success/failure
// decision depends on classifying the error after the call returns, not on
// whether the call returned an error at all.
type Breaker struct {
	cb *gobreaker.TwoStepCircuitBreaker
}

// BreakerConfig tunes trip/reset behavior.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	OpenTimeout      time.Duration
	HalfOpenProbes   uint32
}

// NewBreaker builds a Breaker from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenProbes,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	return &Breaker{cb: gobreaker.NewTwoStepCircuitBreaker(settings)}
}

// ErrBreakerOpen is returned by Allow when the breaker is Open; when HalfOpen
// probes are exhausted Allow returns gobreaker.ErrTooManyRequests instead.
// The orchestrator classifies either refusal as overloaded, which is
// retryable and fallbackable: the call is retried on the same provider per
// the retry policy first, and moves to the next fallback candidate only once
// those attempts are exhausted.
var ErrBreakerOpen = gobreaker.ErrOpenState

// Allow reports whether a call may proceed. When it may, the returned done
// function must be called exactly once with the outcome, so the breaker's
// state machine can observe it.
func (b *Breaker) Allow() (done func(success bool), err error) {
	return b.cb.Allow()
}

// ObserveClassified determines, from a classified error (nil on success),
// whether the breaker should count this outcome as a failure: only
// "server" and "rate" category errors count; everything else (including no
// error at all) counts as success from the breaker's point of view.
func ObserveClassified(classified *errorclass.ClassifiedError) bool {
	if classified == nil {
		return true
	}
	switch classified.Code.Category() {
	case errorclass.CategoryServer, errorclass.CategoryRate:
		return false
	default:
		return true
	}
}

// State reports the breaker's current state name ("closed", "open", "half-open").
func (b *Breaker) State() string {
	return b.cb.State().String()
}
