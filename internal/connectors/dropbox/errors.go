package dropbox

import (
	"errors"
	"strings"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

// Dropbox-specific errors.
var (
	// ErrCursorReset indicates the cursor is no longer valid.
	// The account must be reset to re-list its tree.
	ErrCursorReset = errors.New("dropbox: cursor reset, full resync required")

	// ErrUnauthorized indicates an invalid or expired access token.
	ErrUnauthorized = errors.New("dropbox: unauthorised (invalid credentials)")

	// ErrRateLimited indicates the request was throttled.
	ErrRateLimited = errors.New("dropbox: rate limit exceeded")

	// ErrNotFile is returned by the revision lookup of a folder path.
	ErrNotFile = errors.New("dropbox: path is not a file")
)

// Error summary tags, as they appear in the SDK's error strings.
const (
	tagReset              = "reset"
	tagExpiredAccessToken = "expired_access_token"
	tagInvalidAccessToken = "invalid_access_token"
	tagMissingScope       = "missing_scope"
	tagUserSuspended      = "user_suspended"
	tagNotFound           = "not_found"
	tagMalformedPath      = "malformed_path"
	tagNotFile            = "not_file"
	tagNotFolder          = "not_folder"
	tagTooManyRequests    = "too_many_requests"
	tagTooManyWrites      = "too_many_write_operations"
)

// hasTag reports whether the SDK error summary contains tag as a path
// segment, e.g. "path/not_found/.." has "not_found".
func hasTag(err error, tag string) bool {
	for _, seg := range strings.Split(err.Error(), "/") {
		if strings.TrimRight(strings.TrimSpace(seg), ".") == tag {
			return true
		}
	}
	return false
}

// Classify wraps err in the poll error class the cycle acts on.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrTransientProvider) || errors.Is(err, domain.ErrFatalProvider) {
		return err
	}

	switch {
	case hasTag(err, tagReset):
		return domain.Fatal(errors.Join(ErrCursorReset, err))
	case hasTag(err, tagExpiredAccessToken), hasTag(err, tagInvalidAccessToken):
		return domain.Fatal(errors.Join(ErrUnauthorized, err))
	case hasTag(err, tagMissingScope), hasTag(err, tagUserSuspended),
		hasTag(err, tagNotFound), hasTag(err, tagMalformedPath),
		hasTag(err, tagNotFile), hasTag(err, tagNotFolder):
		return domain.Fatal(err)
	case hasTag(err, tagTooManyRequests), hasTag(err, tagTooManyWrites):
		return domain.Transient(errors.Join(ErrRateLimited, err))
	default:
		return domain.Transient(err)
	}
}
