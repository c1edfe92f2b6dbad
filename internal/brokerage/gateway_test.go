package brokerage

import (
	"bytes"
	"errors"
	"log"
	"sync/atomic"
	"testing"
	"time"
)

func TestLiveGatewayCallWithRetryRecoversFromTransientFailure(t *testing.T) {
	gw := NewLiveGateway("test-venue", DefaultGatewaySettings)
	var buf bytes.Buffer
	retryer := NewRetryGateway(log.New(&buf, "", 0), RetryConfig{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})

	var calls int32
	result, err := gw.CallWithRetry(retryer, "submit", func() (interface{}, error) {
		n := atomic.AddInt32(&calls, 1)
		if n < 2 {
			return nil, errors.New("timeout")
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected result %q, got %v", "ok", result)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestLiveGatewayCallWithRetryTripsBreakerOnExhaustedRetries(t *testing.T) {
	gw := NewLiveGateway("test-venue-2", GatewaySettings{MaxConsecutiveFailures: 1, OpenTimeout: time.Minute})
	var buf bytes.Buffer
	retryer := NewRetryGateway(log.New(&buf, "", 0), RetryConfig{
		MaxRetries:     1,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	})

	_, err := gw.CallWithRetry(retryer, "submit", func() (interface{}, error) {
		return nil, errors.New("connection refused")
	})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}

	// A second call should now see the breaker open rather than invoking fn.
	var secondCalled bool
	_, err = gw.CallWithRetry(retryer, "submit", func() (interface{}, error) {
		secondCalled = true
		return "ok", nil
	})
	if err == nil {
		t.Fatal("expected breaker-open error on second call")
	}
	if secondCalled {
		t.Fatal("breaker should have short-circuited before invoking fn")
	}
}
