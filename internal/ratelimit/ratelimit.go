// Package ratelimit throttles calls to the token-issuing endpoints.
// The endpoints apply aggressive server-side throttling to repeated
// authentication attempts, so clients keep their own token bucket and back
// off when the server says to retry later.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds rate limiting configuration for a token endpoint.
type Config struct {
	// RequestsPerSecond is the sustained rate limit.
	RequestsPerSecond float64
	// BurstSize is the maximum burst size.
	BurstSize int
}

// DefaultConfig is a conservative default for authentication endpoints;
// interactive flows rarely need more than a few calls in quick succession.
var DefaultConfig = Config{RequestsPerSecond: 2.0, BurstSize: 5}

// Limiter is a token bucket with optional backoff for 429/503 responses.
type Limiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
}

// New creates a limiter with the default configuration.
func New() *Limiter {
	return NewWithConfig(DefaultConfig)
}

// NewWithConfig creates a limiter with custom configuration.
func NewWithConfig(cfg Config) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
	}
}

// Wait blocks until a request can be made without exceeding the rate
// limit. It also respects any backoff period set by RecordRetryAfter.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	retryAt := l.retryAt
	l.mu.Unlock()

	if time.Now().Before(retryAt) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(retryAt)):
		}
	}

	return l.limiter.Wait(ctx)
}

// RecordRetryAfter records a server-side throttling response and sets a
// backoff period. Call this on a 429 or 503 from a token endpoint, passing
// the Retry-After value if the server sent one.
func (l *Limiter) RecordRetryAfter(seconds int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if seconds <= 0 {
		seconds = 60
	}

	l.retryAt = time.Now().Add(time.Duration(seconds) * time.Second)
}

// RetryAfterSeconds extracts the Retry-After value from a throttling
// response's headers. Returns 0 when the header is absent or not given in
// seconds, which RecordRetryAfter treats as the default backoff.
func RetryAfterSeconds(h http.Header) int {
	seconds, err := strconv.Atoi(strings.TrimSpace(h.Get("Retry-After")))
	if err != nil || seconds < 0 {
		return 0
	}
	return seconds
}

// Allow checks if a request can be made immediately without blocking.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	retryAt := l.retryAt
	l.mu.Unlock()

	if time.Now().Before(retryAt) {
		return false
	}

	return l.limiter.Allow()
}
