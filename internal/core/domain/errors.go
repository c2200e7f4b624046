package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown account type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrPollInProgress indicates a cycle is already running for the account.
	ErrPollInProgress = errors.New("poll in progress")

	// ErrConnectorClosed indicates the connector has been closed.
	ErrConnectorClosed = errors.New("connector closed")

	// ErrPathEscapesRoot indicates a source path resolves outside the account folder.
	ErrPathEscapesRoot = errors.New("path escapes account root")

	// Poll error classes. Every error surfaced by a poll cycle wraps exactly one.

	// ErrTransientProvider is a network failure, timeout, 5xx or rate limit.
	// The cycle retries with the same position.
	ErrTransientProvider = errors.New("transient provider error")

	// ErrFatalProvider is an authorisation, quota, expired token or malformed
	// response failure. The cycle aborts and keeps its position.
	ErrFatalProvider = errors.New("fatal provider error")

	// ErrNormalization means a single item could not be turned into an action.
	// The item is skipped.
	ErrNormalization = errors.New("normalization error")

	// ErrHandler means a handler failed on one record.
	// The batch continues.
	ErrHandler = errors.New("handler error")
)

// PollError attaches account context to a classified error.
type PollError struct {
	// Class is one of the poll error class sentinels.
	Class error

	// AccountID identifies the account being polled.
	AccountID string

	// SourceID identifies the provider item, when known.
	SourceID string

	// Op names the operation that failed (e.g. "feed.poll", "handler.download").
	Op string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *PollError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": account ")
	b.WriteString(e.AccountID)
	if e.SourceID != "" {
		b.WriteString(" item ")
		b.WriteString(e.SourceID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the class and the cause to errors.Is and errors.As.
func (e *PollError) Unwrap() []error {
	return []error{e.Class, e.Err}
}

// NewPollError builds a PollError. A nil class is derived from err.
func NewPollError(class error, accountID, sourceID, op string, err error) *PollError {
	if class == nil {
		class = ClassOf(err)
	}
	return &PollError{Class: class, AccountID: accountID, SourceID: sourceID, Op: op, Err: err}
}

// ClassOf returns the poll error class wrapped by err.
// Errors carrying no class are treated as transient.
func ClassOf(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrFatalProvider):
		return ErrFatalProvider
	case errors.Is(err, ErrNormalization):
		return ErrNormalization
	case errors.Is(err, ErrHandler):
		return ErrHandler
	default:
		return ErrTransientProvider
	}
}

// ClassName returns a short label for an error class, used in logs and metrics.
func ClassName(err error) string {
	switch ClassOf(err) {
	case ErrFatalProvider:
		return "fatal"
	case ErrNormalization:
		return "normalization"
	case ErrHandler:
		return "handler"
	case nil:
		return "none"
	default:
		return "transient"
	}
}

// Transient wraps err as a transient provider error.
func Transient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransientProvider, err)
}

// Fatal wraps err as a fatal provider error.
func Fatal(err error) error {
	return fmt.Errorf("%w: %w", ErrFatalProvider, err)
}
