// Package ratelimit paces requests to cloud-storage providers and honours
// the backoff periods they ask for.
package ratelimit

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Provider identifies an API for rate limiting purposes.
type Provider string

const (
	// ProviderBox is the Box content API.
	ProviderBox Provider = "box"
	// ProviderDropbox is the Dropbox API v2.
	ProviderDropbox Provider = "dropbox"
	// ProviderDrive is the Google Drive API v3.
	ProviderDrive Provider = "drive"
)

// DefaultBackoff is used when a provider rate-limits without saying for how long.
const DefaultBackoff = 60 * time.Second

// Config holds rate limiting configuration for a provider.
type Config struct {
	// RequestsPerSecond is the sustained rate limit.
	RequestsPerSecond float64
	// BurstSize is the maximum burst size.
	BurstSize int
}

// DefaultLimits are kept well below each provider's per-user limits.
var DefaultLimits = map[Provider]Config{
	ProviderBox:     {RequestsPerSecond: 10.0, BurstSize: 10},
	ProviderDropbox: {RequestsPerSecond: 5.0, BurstSize: 10},
	ProviderDrive:   {RequestsPerSecond: 8.0, BurstSize: 10}, // Google allows 10/sec/user
}

// Limiter is a token bucket plus a provider-requested pause.
type Limiter struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	retryAt  time.Time
	provider Provider
}

// New creates a limiter with the provider's default limits.
func New(provider Provider) *Limiter {
	cfg, ok := DefaultLimits[provider]
	if !ok {
		cfg = Config{RequestsPerSecond: 5.0, BurstSize: 10}
	}
	l := NewWithConfig(cfg)
	l.provider = provider
	return l
}

// NewWithConfig creates a limiter with custom limits.
func NewWithConfig(cfg Config) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
	}
}

// Provider returns the provider the limiter was built for.
func (l *Limiter) Provider() Provider {
	return l.provider
}

// Wait blocks until a request may be made. It first sits out any pause
// set by Pause or RecordRateLimit.
func (l *Limiter) Wait(ctx context.Context) error {
	if d := time.Until(l.RetryAt()); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return l.limiter.Wait(ctx)
}

// Pause holds back requests for d. A shorter pause never cuts an
// existing one short.
func (l *Limiter) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if at := time.Now().Add(d); at.After(l.retryAt) {
		l.retryAt = at
	}
}

// RecordRateLimit pauses for retryAfter, or DefaultBackoff when the
// provider gave no hint.
func (l *Limiter) RecordRateLimit(retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = DefaultBackoff
	}
	l.Pause(retryAfter)
}

// RetryAt returns when the current pause ends.
func (l *Limiter) RetryAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.retryAt
}

// Allow reports whether a request may be made immediately.
func (l *Limiter) Allow() bool {
	if time.Now().Before(l.RetryAt()) {
		return false
	}
	return l.limiter.Allow()
}

// ParseRetryAfter reads a Retry-After header given in seconds.
// Returns 0 when the header is missing or not a number.
func ParseRetryAfter(header string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
