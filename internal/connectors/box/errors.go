package box

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

// Box-specific errors.
var (
	// ErrUnauthorized indicates an invalid or expired access token.
	ErrUnauthorized = errors.New("box: unauthorised (invalid credentials)")

	// ErrForbidden indicates the token lacks a required scope.
	ErrForbidden = errors.New("box: forbidden (insufficient permissions)")

	// ErrNotFound indicates the item no longer exists.
	ErrNotFound = errors.New("box: item not found")

	// ErrRateLimited indicates the request was throttled.
	ErrRateLimited = errors.New("box: rate limit exceeded")

	// ErrMalformedResponse indicates a response body that could not be decoded.
	ErrMalformedResponse = errors.New("box: malformed response")
)

// APIError is a non-2xx Box response.
type APIError struct {
	StatusCode int    `json:"status"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	RequestID  string `json:"request_id"`

	// RetryAfter is the server's requested pause, if any.
	RetryAfter time.Duration `json:"-"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("box: API error %d", e.StatusCode)
	}
	return fmt.Sprintf("box: API error %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap maps the status onto the package sentinels.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return nil
	}
}

func newAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{}
	_ = json.Unmarshal(body, apiErr)
	apiErr.StatusCode = resp.StatusCode
	return apiErr
}

// IsUnauthorized returns true if the error indicates invalid credentials.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsNotFound returns true if the error indicates a missing item.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Classify wraps err in the poll error class the cycle acts on.
// Credential, permission, missing-item and decoding failures are fatal;
// throttling, 5xx and transport failures are transient.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrTransientProvider) || errors.Is(err, domain.ErrFatalProvider) {
		return err
	}

	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.StatusCode == http.StatusRequestTimeout ||
			apiErr.StatusCode >= http.StatusInternalServerError {
			return domain.Transient(err)
		}
		return domain.Fatal(err)
	case errors.Is(err, ErrMalformedResponse):
		return domain.Fatal(err)
	default:
		return domain.Transient(err)
	}
}
