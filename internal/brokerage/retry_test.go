package brokerage

import (
	"bytes"
	"errors"
	"log"
	"sync/atomic"
	"testing"
	"time"
)

func testRetryGateway(buf *bytes.Buffer) *RetryGateway {
	logger := log.New(buf, "", 0)
	return NewRetryGateway(logger, RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
	})
}

func TestRetryGatewaySucceedsAfterTransientErrors(t *testing.T) {
	var buf bytes.Buffer
	g := testRetryGateway(&buf)

	var calls int32
	err := g.Do("place-order", func() error {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return errors.New("connection reset")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryGatewayStopsOnPermanentError(t *testing.T) {
	var buf bytes.Buffer
	g := testRetryGateway(&buf)

	var calls int32
	permanent := errors.New("invalid order parameters")
	err := g.Do("place-order", func() error {
		atomic.AddInt32(&calls, 1)
		return permanent
	})

	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error to surface unchanged, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected no retries on a non-transient error, got %d calls", calls)
	}
}

func TestRetryGatewayExhaustsRetriesOnPersistentTransientError(t *testing.T) {
	var buf bytes.Buffer
	g := testRetryGateway(&buf)

	var calls int32
	err := g.Do("place-order", func() error {
		atomic.AddInt32(&calls, 1)
		return errors.New("503 service unavailable")
	})

	if err == nil {
		t.Fatal("expected final attempt's error to surface")
	}
	if calls != 4 { // initial attempt + 3 retries
		t.Fatalf("expected 4 total attempts, got %d", calls)
	}
}

func TestIsTransientErrorClassification(t *testing.T) {
	cases := map[string]bool{
		"i/o timeout":              true,
		"connection refused":       true,
		"rate limit exceeded":      true,
		"429 too many requests":    true,
		"invalid order parameters": false,
		"insufficient funds":       false,
	}
	for msg, want := range cases {
		got := isTransientError(errors.New(msg))
		if got != want {
			t.Errorf("isTransientError(%q) = %v, want %v", msg, got, want)
		}
	}
}
