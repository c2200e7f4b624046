package google

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/custodia-labs/cloudpoll/internal/connectors/ratelimit"
	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

var (
	ErrUnauthorized  = errors.New("google: unauthorised (invalid credentials)")
	ErrForbidden     = errors.New("google: forbidden (insufficient permissions)")
	ErrNotFound      = errors.New("google: resource not found")
	ErrRateLimited   = errors.New("google: rate limit exceeded")
	ErrQuotaExceeded = errors.New("google: daily quota exceeded")

	// ErrSyncTokenExpired is a 410 on changes.list; the account needs a reset.
	ErrSyncTokenExpired = errors.New("google: page token expired, full resync required")
)

// 403 reasons that mean "slow down" rather than "not allowed".
var (
	rateLimitReasons = []string{"rateLimitExceeded", "userRateLimitExceeded"}
	quotaReasons     = []string{"dailyLimitExceeded", "quotaExceeded"}
)

// IsRateLimited reports a 429, or a 403 carrying a rate limit reason.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.Code == http.StatusTooManyRequests ||
		(gerr.Code == http.StatusForbidden && hasReason(gerr, rateLimitReasons))
}

func hasReason(gerr *googleapi.Error, reasons []string) bool {
	return slices.ContainsFunc(gerr.Errors, func(item googleapi.ErrorItem) bool {
		return slices.Contains(reasons, item.Reason)
	})
}

// sentinel maps an API error to one of the package errors, or nil.
func sentinel(gerr *googleapi.Error) error {
	switch gerr.Code {
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusGone:
		return ErrSyncTokenExpired
	case http.StatusForbidden:
		switch {
		case hasReason(gerr, rateLimitReasons):
			return ErrRateLimited
		case hasReason(gerr, quotaReasons):
			return ErrQuotaExceeded
		}
		return ErrForbidden
	}
	return nil
}

// WrapError joins a package sentinel onto Google API errors. The
// *googleapi.Error stays reachable through errors.As.
func WrapError(err error) error {
	var gerr *googleapi.Error
	if err == nil || !errors.As(err, &gerr) {
		return err
	}
	if s := sentinel(gerr); s != nil {
		return errors.Join(s, err)
	}
	return err
}

// Classify wraps err in the poll error class the cycle acts on, and pauses
// limiter when Google asks for a backoff. limiter may be nil.
// Errors that never reached the API (network, timeouts) are transient.
func Classify(err error, limiter *ratelimit.Limiter) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrTransientProvider) || errors.Is(err, domain.ErrFatalProvider) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.Transient(err)
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return domain.Transient(err)
	}

	wrapped := WrapError(err)
	switch {
	case IsRateLimited(err):
		if limiter != nil {
			limiter.RecordRateLimit(retryAfter(gerr))
		}
		return domain.Transient(wrapped)
	case gerr.Code >= http.StatusInternalServerError, gerr.Code == http.StatusRequestTimeout:
		return domain.Transient(wrapped)
	}
	return domain.Fatal(wrapped)
}

func retryAfter(gerr *googleapi.Error) time.Duration {
	if gerr.Header == nil {
		return 0
	}
	return ratelimit.ParseRetryAfter(gerr.Header.Get("Retry-After"))
}
