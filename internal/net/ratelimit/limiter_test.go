package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	limiter := NewLimiter(2.0, 2)

	if !limiter.Allow("risk.local") {
		t.Error("First request should be allowed")
	}
	if !limiter.Allow("risk.local") {
		t.Error("Second request should be allowed within burst")
	}
	if limiter.Allow("risk.local") {
		t.Error("Third request should be blocked once burst is spent")
	}
}

func TestLimiter_HostsAreIndependent(t *testing.T) {
	limiter := NewLimiter(1.0, 1)

	if !limiter.Allow("risk.local") {
		t.Error("First request to risk host should be allowed")
	}
	if !limiter.Allow("broker.local") {
		t.Error("First request to broker host should be allowed")
	}
	if limiter.Allow("risk.local") {
		t.Error("Second request to risk host should be blocked")
	}
}

func TestLimiter_WaitCancellation(t *testing.T) {
	limiter := NewLimiter(0.5, 1)
	if !limiter.Allow("risk.local") {
		t.Fatal("Burst token should be available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx, "risk.local"); err == nil {
		t.Error("Wait should fail when the context expires before a token frees up")
	}
}

func TestLimiter_DefaultsOnBadInput(t *testing.T) {
	limiter := NewLimiter(0, 0)
	if !limiter.Allow("risk.local") {
		t.Error("Defaulted limiter should still admit requests")
	}
}
