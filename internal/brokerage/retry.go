package brokerage

import (
	"crypto/rand"
	"log"
	"math/big"
	"strings"
	"time"
)

// RetryConfig controls the exponential-backoff-with-jitter schedule
// RetryGateway applies to transient errors from a live venue call.
// Grounded on the teacher's internal/retry.Config, generalized from a
// single CloseStranglePositionCtx call to any gateway operation.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig mirrors the teacher's internal/retry.DefaultConfig
// backoff shape.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxRetries < 0 {
		c.MaxRetries = DefaultRetryConfig.MaxRetries
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultRetryConfig.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultRetryConfig.MaxBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	return c
}

// RetryGateway wraps any live adapter call with exponential backoff and
// jitter on transient errors, so a concrete brokerage gateway (FXCM,
// Oanda, Tradier, or any future venue) gets retry for free by calling
// Do instead of invoking the venue directly. Pairs naturally with
// LiveGateway: wrap the retried call in Call to add breaker tripping on
// top of the retry schedule.
type RetryGateway struct {
	logger *log.Logger
	config RetryConfig
}

// NewRetryGateway constructs a retry wrapper; a nil logger defaults to
// log.Default(), matching the teacher's nil-logger guard.
func NewRetryGateway(logger *log.Logger, config RetryConfig) *RetryGateway {
	if logger == nil {
		logger = log.Default()
	}
	return &RetryGateway{logger: logger, config: config.normalized()}
}

// Do runs fn, retrying on transient errors with exponential backoff and
// jitter up to config.MaxRetries times. It stops early and returns the
// error on the first non-transient failure. Do takes no context, so
// callers that need cancellation should have fn itself observe one.
func (g *RetryGateway) Do(op string, fn func() error) error {
	var lastErr error
	backoff := g.config.InitialBackoff

	for attempt := 0; attempt <= g.config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				g.logger.Printf("%s succeeded on attempt %d", op, attempt+1)
			}
			return nil
		}

		lastErr = err
		g.logger.Printf("%s attempt %d/%d failed: %v", op, attempt+1, g.config.MaxRetries+1, err)

		if !isTransientError(err) || attempt == g.config.MaxRetries {
			break
		}

		g.logger.Printf("transient error, retrying %s in %v", op, backoff)
		time.Sleep(backoff)
		backoff = g.nextBackoff(backoff)
	}

	return lastErr
}

func (g *RetryGateway) nextBackoff(current time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if backoff > g.config.MaxBackoff {
		backoff = g.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			g.logger.Printf("failed to generate jitter: %v", err)
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}

	return backoff
}

var transientPatterns = []string{
	"timeout",
	"i/o timeout",
	"connection refused",
	"connection reset",
	"temporary failure",
	"temporarily unavailable",
	"server error",
	"rate limit",
	"429",
	"502",
	"503",
	"504",
	"network",
	"dns",
	"tcp",
	"no such host",
	"deadline exceeded",
	"tls handshake",
	"broken pipe",
	"eof",
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
