package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"

	"github.com/custodia-labs/cloudpoll/internal/connectors/ratelimit"
	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

func apiErr(code int, reasons ...string) error {
	gerr := &googleapi.Error{Code: code, Message: http.StatusText(code)}
	for _, r := range reasons {
		gerr.Errors = append(gerr.Errors, googleapi.ErrorItem{Reason: r})
	}
	return fmt.Errorf("changes list: %w", gerr)
}

func TestWrapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unauthorised", apiErr(http.StatusUnauthorized), ErrUnauthorized},
		{"forbidden", apiErr(http.StatusForbidden, "insufficientPermissions"), ErrForbidden},
		{"rate limit 403", apiErr(http.StatusForbidden, "userRateLimitExceeded"), ErrRateLimited},
		{"rate limit 429", apiErr(http.StatusTooManyRequests), ErrRateLimited},
		{"quota", apiErr(http.StatusForbidden, "dailyLimitExceeded"), ErrQuotaExceeded},
		{"not found", apiErr(http.StatusNotFound), ErrNotFound},
		{"gone", apiErr(http.StatusGone), ErrSyncTokenExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := WrapError(tt.err)
			assert.ErrorIs(t, wrapped, tt.want)

			var gerr *googleapi.Error
			assert.ErrorAs(t, wrapped, &gerr)
		})
	}

	assert.NoError(t, WrapError(nil))
	assert.Equal(t, apiErr(http.StatusBadRequest).Error(), WrapError(apiErr(http.StatusBadRequest)).Error())
	plain := errors.New("boom")
	assert.Equal(t, plain, WrapError(plain))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		class error
	}{
		{"unauthorised", apiErr(http.StatusUnauthorized), domain.ErrFatalProvider},
		{"forbidden", apiErr(http.StatusForbidden), domain.ErrFatalProvider},
		{"quota", apiErr(http.StatusForbidden, "quotaExceeded"), domain.ErrFatalProvider},
		{"gone", apiErr(http.StatusGone), domain.ErrFatalProvider},
		{"bad request", apiErr(http.StatusBadRequest), domain.ErrFatalProvider},
		{"rate limited", apiErr(http.StatusTooManyRequests), domain.ErrTransientProvider},
		{"server error", apiErr(http.StatusBadGateway), domain.ErrTransientProvider},
		{"network", errors.New("connection reset by peer"), domain.ErrTransientProvider},
		{"call timeout", fmt.Errorf("list changes: %w", context.DeadlineExceeded), domain.ErrTransientProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, Classify(tt.err, nil), tt.class)
		})
	}
	assert.NoError(t, Classify(nil, nil))
}

func TestClassify_RecordsRetryAfter(t *testing.T) {
	limiter := ratelimit.New(ratelimit.ProviderDrive)
	gerr := &googleapi.Error{Code: http.StatusTooManyRequests, Header: http.Header{"Retry-After": {"30"}}}

	err := Classify(gerr, limiter)

	assert.ErrorIs(t, err, domain.ErrTransientProvider)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.WithinDuration(t, time.Now().Add(30*time.Second), limiter.RetryAt(), 2*time.Second)
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, IsRateLimited(apiErr(http.StatusForbidden, "rateLimitExceeded")))
	assert.True(t, IsRateLimited(ErrRateLimited))
	assert.False(t, IsRateLimited(apiErr(http.StatusForbidden)))
	assert.False(t, IsRateLimited(apiErr(http.StatusForbidden, "dailyLimitExceeded")))
	assert.False(t, IsRateLimited(errors.New("x")))
}
