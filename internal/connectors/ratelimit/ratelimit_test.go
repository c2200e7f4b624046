package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_UsesProviderDefaults(t *testing.T) {
	for provider, cfg := range DefaultLimits {
		l := New(provider)
		assert.Equal(t, provider, l.Provider())
		assert.InDelta(t, cfg.RequestsPerSecond, float64(l.limiter.Limit()), 0.001)
		assert.Equal(t, cfg.BurstSize, l.limiter.Burst())
	}

	unknown := New("onedrive")
	assert.InDelta(t, 5.0, float64(unknown.limiter.Limit()), 0.001)
}

func TestLimiter_WaitWithinBurst(t *testing.T) {
	l := NewWithConfig(Config{RequestsPerSecond: 1, BurstSize: 3})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestLimiter_PauseBlocksAllow(t *testing.T) {
	l := New(ProviderBox)
	assert.True(t, l.Allow())

	l.Pause(time.Hour)
	assert.False(t, l.Allow())
	assert.WithinDuration(t, time.Now().Add(time.Hour), l.RetryAt(), time.Second)
}

func TestLimiter_PauseNeverShortens(t *testing.T) {
	l := New(ProviderDropbox)
	l.Pause(time.Hour)
	first := l.RetryAt()

	l.Pause(time.Second)
	assert.Equal(t, first, l.RetryAt())

	l.Pause(0)
	assert.Equal(t, first, l.RetryAt())
}

func TestLimiter_RecordRateLimitDefault(t *testing.T) {
	l := New(ProviderDrive)
	l.RecordRateLimit(0)
	assert.WithinDuration(t, time.Now().Add(DefaultBackoff), l.RetryAt(), time.Second)
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	l := New(ProviderBox)
	l.Pause(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", 0},
		{"30", 30 * time.Second},
		{" 5 ", 5 * time.Second},
		{"-1", 0},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRetryAfter(tt.header))
		})
	}
}
