package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aiproto/runtime/errorclass"
)

// RetryConfig tunes the exponential-backoff-with-full-jitter policy.
// Mirrors the teacher's RetryConfig shape (core/client/middleware/retry.go)
// but delegates the backoff math to cenkalti/backoff instead of hand-rolled
// math, and adds retry-after override support per spec.md §4.6.
type RetryConfig struct {
	MaxAttempts  int
	BaseInterval time.Duration
	MaxInterval  time.Duration
}

func applyRetryDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseInterval == 0 {
		cfg.BaseInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 10 * time.Second
	}
	return cfg
}

// Attempt performs op, retrying per cfg while the returned
// *errorclass.ClassifiedError is Retryable, up to cfg.MaxAttempts total
// calls. retryAfter, when non-zero, overrides the computed backoff delay
// for that one retry when it is larger, per spec.md §4.6. Cancellation via
// ctx is honored between attempts.
func Attempt(ctx context.Context, cfg RetryConfig, op func() (interface{}, *errorclass.ClassifiedError, time.Duration)) (interface{}, *errorclass.ClassifiedError) {
	cfg = applyRetryDefaults(cfg)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.BaseInterval
	policy.MaxInterval = cfg.MaxInterval
	policy.MaxElapsedTime = 0 // bounded by attempt count, not elapsed time

	var lastErr *errorclass.ClassifiedError
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, classified, retryAfter := op()
		if classified == nil {
			return result, nil
		}
		lastErr = classified

		if !classified.Retryable() || attempt == cfg.MaxAttempts-1 {
			return nil, classified
		}

		delay := fullJitter(policy.NextBackOff())
		if retryAfter > delay {
			delay = retryAfter
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, &errorclass.ClassifiedError{Code: errorclass.Cancelled, Message: ctx.Err().Error(), Cause: ctx.Err()}
		case <-timer.C:
		}
	}
	return nil, lastErr
}

// fullJitter re-derives a full-jitter delay (uniform in [0, backoff]) from
// cenkalti/backoff's already-jittered NextBackOff, since the library's own
// jitter is a fixed +/-RandomizationFactor rather than the
// [0, computed] full-jitter spread spec.md §4.6 calls for. NextBackOff's
// return value is treated here as the upper bound of that spread.
func fullJitter(backoffValue time.Duration) time.Duration {
	if backoffValue <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(backoffValue)))
}
