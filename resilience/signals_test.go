package resilience

import (
	"testing"
	"time"
)

func TestObserveSnapshotReflectsLimiterAndBreaker(t *testing.T) {
	rl := NewRateLimiter(1000, 1000)
	rl.ObserveHeaders("3", "1.2", "")

	b := NewBreaker(BreakerConfig{Name: "observe-test", FailureThreshold: 2, OpenTimeout: time.Second, HalfOpenProbes: 1})

	snap := Observe("acme", rl, b)
	if snap.ProviderID != "acme" {
		t.Fatalf("expected provider id acme, got %q", snap.ProviderID)
	}
	if snap.BreakerState != "closed" {
		t.Fatalf("expected closed breaker state, got %q", snap.BreakerState)
	}
	if !snap.HasRemaining || snap.RemainingRequests != 3 {
		t.Fatalf("expected remaining=3, got hasRemaining=%v remaining=%d", snap.HasRemaining, snap.RemainingRequests)
	}
	if snap.ResetAt.IsZero() {
		t.Fatalf("expected non-zero resetAt")
	}
}

func TestObserveHandlesNilLimiterAndBreaker(t *testing.T) {
	snap := Observe("acme", nil, nil)
	if snap.ProviderID != "acme" {
		t.Fatalf("expected provider id acme, got %q", snap.ProviderID)
	}
	if snap.BreakerState != "" {
		t.Fatalf("expected empty breaker state, got %q", snap.BreakerState)
	}
	if snap.EstimatedWaitMS != 0 {
		t.Fatalf("expected zero estimated wait, got %d", snap.EstimatedWaitMS)
	}
}
