package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrors_Existence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrAlreadyExists", ErrAlreadyExists},
		{"ErrInvalidInput", ErrInvalidInput},
		{"ErrUnsupportedType", ErrUnsupportedType},
		{"ErrPollInProgress", ErrPollInProgress},
		{"ErrConnectorClosed", ErrConnectorClosed},
		{"ErrPathEscapesRoot", ErrPathEscapesRoot},
		{"ErrTransientProvider", ErrTransientProvider},
		{"ErrFatalProvider", ErrFatalProvider},
		{"ErrNormalization", ErrNormalization},
		{"ErrHandler", ErrHandler},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestPollError_IsAndAs(t *testing.T) {
	cause := errors.New("401 unauthorized")
	err := fmt.Errorf("polling: %w", NewPollError(ErrFatalProvider, "acct-1", "", "feed.poll", cause))

	assert.True(t, errors.Is(err, ErrFatalProvider))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrTransientProvider))

	var pe *PollError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "acct-1", pe.AccountID)
	assert.Equal(t, "feed.poll", pe.Op)
}

func TestPollError_Message(t *testing.T) {
	err := NewPollError(ErrHandler, "acct-1", "item-9", "handler.download", errors.New("disk full"))
	assert.Equal(t, "handler.download: account acct-1 item item-9: disk full", err.Error())

	noItem := NewPollError(ErrFatalProvider, "acct-1", "", "feed.poll", nil)
	assert.Equal(t, "feed.poll: account acct-1", noItem.Error())
}

func TestNewPollError_DerivesClass(t *testing.T) {
	err := NewPollError(nil, "a", "", "op", Fatal(errors.New("expired")))
	assert.Equal(t, ErrFatalProvider, err.Class)

	err = NewPollError(nil, "a", "", "op", errors.New("connection reset"))
	assert.Equal(t, ErrTransientProvider, err.Class)
}

func TestClassOf(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		want  error
		label string
	}{
		{"nil", nil, nil, "none"},
		{"fatal", Fatal(errors.New("x")), ErrFatalProvider, "fatal"},
		{"transient", Transient(errors.New("x")), ErrTransientProvider, "transient"},
		{"unclassified", errors.New("x"), ErrTransientProvider, "transient"},
		{"normalization", fmt.Errorf("%w: cycle", ErrNormalization), ErrNormalization, "normalization"},
		{"handler", fmt.Errorf("%w: boom", ErrHandler), ErrHandler, "handler"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassOf(tt.err))
			assert.Equal(t, tt.label, ClassName(tt.err))
		})
	}
}
