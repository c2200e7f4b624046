package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()

	assert.Equal(t, PositionBackendSQLite, s.PositionBackend)
	assert.Equal(t, 5*time.Minute, s.Poll.Interval)
	assert.Equal(t, 30*time.Second, s.Box.Window)
	assert.Equal(t, 60*time.Second, s.Dropbox.LongpollTimeout)
	assert.Empty(t, s.Metrics.Addr)
}

func TestSettings_Validate(t *testing.T) {
	valid := func() Settings {
		s := DefaultSettings()
		s.SyncFolder = "/srv/sync"
		return s
	}

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"defaults with folder", func(*Settings) {}, false},
		{"missing folder", func(s *Settings) { s.SyncFolder = "" }, true},
		{"bad backend", func(s *Settings) { s.PositionBackend = "redis" }, true},
		{"zero interval", func(s *Settings) { s.Poll.Interval = 0 }, true},
		{"zero concurrency", func(s *Settings) { s.Poll.Concurrency = 0 }, true},
		{"zero attempts", func(s *Settings) { s.Poll.MaxAttempts = 0 }, true},
		{"longpoll too short", func(s *Settings) { s.Dropbox.LongpollTimeout = 10 * time.Second }, true},
		{"longpoll too long", func(s *Settings) { s.Dropbox.LongpollTimeout = 10 * time.Minute }, true},
		{"longpoll max", func(s *Settings) { s.Dropbox.LongpollTimeout = 480 * time.Second }, false},
		{"zero window", func(s *Settings) { s.Box.Window = 0 }, true},
		{"file backend", func(s *Settings) { s.PositionBackend = PositionBackendFile }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
