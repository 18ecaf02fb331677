package resilience

import (
	"testing"
	"time"

	"github.com/aiproto/runtime/errorclass"
)

func classifiedWithCode(code errorclass.Code) *errorclass.ClassifiedError {
	return &errorclass.ClassifiedError{Code: code}
}

func TestObserveClassifiedNilIsSuccess(t *testing.T) {
	if !ObserveClassified(nil) {
		t.Fatalf("expected nil classified error to count as success")
	}
}

func TestObserveClassifiedServerCategoryIsFailure(t *testing.T) {
	if ObserveClassified(classifiedWithCode(errorclass.ServerError)) {
		t.Fatalf("expected server-category error to count as failure")
	}
}

func TestObserveClassifiedRateCategoryIsFailure(t *testing.T) {
	if ObserveClassified(classifiedWithCode(errorclass.RateLimited)) {
		t.Fatalf("expected rate-category error to count as failure")
	}
}

func TestObserveClassifiedClientCategoryIsSuccess(t *testing.T) {
	if !ObserveClassified(classifiedWithCode(errorclass.InvalidRequest)) {
		t.Fatalf("expected client-category error NOT to count as breaker failure")
	}
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		OpenTimeout:      50 * time.Millisecond,
		HalfOpenProbes:   1,
	})

	for i := 0; i < 3; i++ {
		done, err := b.Allow()
		if err != nil {
			t.Fatalf("attempt %d: breaker unexpectedly open: %v", i, err)
		}
		done(false)
	}

	if _, err := b.Allow(); err != ErrBreakerOpen {
		t.Fatalf("expected breaker to be open after 3 consecutive failures, got %v", err)
	}
	if got := b.State(); got != "open" {
		t.Fatalf("expected state open, got %q", got)
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		Name:             "test-recover",
		FailureThreshold: 2,
		OpenTimeout:      10 * time.Millisecond,
		HalfOpenProbes:   1,
	})

	for i := 0; i < 2; i++ {
		done, _ := b.Allow()
		done(false)
	}
	if _, err := b.Allow(); err != ErrBreakerOpen {
		t.Fatalf("expected open state, got %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	done, err := b.Allow()
	if err != nil {
		t.Fatalf("expected half-open probe to be allowed, got %v", err)
	}
	done(true)

	if got := b.State(); got != "closed" {
		t.Fatalf("expected breaker to close after successful probe, got %q", got)
	}
}
