package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/cloudpoll/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

func TestSettingsService_Get_ReturnsDefaults(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore())

	settings, err := service.Get()

	require.NoError(t, err)
	defaults := domain.DefaultSettings()
	assert.Equal(t, defaults.Poll, settings.Poll)
	assert.Equal(t, defaults.Box, settings.Box)
	assert.Equal(t, defaults.Dropbox, settings.Dropbox)
	assert.Equal(t, domain.PositionBackendSQLite, settings.PositionBackend)
	assert.Empty(t, settings.SyncFolder)
}

func TestSettingsService_Get_ReturnsStoredValues(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("sync_folder", "/srv/sync")
	_ = store.Set("poll.interval", "90s")
	_ = store.Set("poll.concurrency", 2)
	_ = store.Set("box.window_seconds", 10)
	_ = store.Set("dropbox.longpoll_seconds", int64(120))
	_ = store.Set("position_store", "file")

	settings, err := NewSettingsService(store).Get()

	require.NoError(t, err)
	assert.Equal(t, "/srv/sync", settings.SyncFolder)
	assert.Equal(t, 90*time.Second, settings.Poll.Interval)
	assert.Equal(t, 2, settings.Poll.Concurrency)
	assert.Equal(t, 10*time.Second, settings.Box.Window)
	assert.Equal(t, 120*time.Second, settings.Dropbox.LongpollTimeout)
	assert.Equal(t, domain.PositionBackendFile, settings.PositionBackend)
}

func TestSettingsService_SaveRoundTrip(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore())

	settings := service.GetDefaults()
	settings.SyncFolder = "/tmp/cloud"
	settings.Poll.Interval = time.Minute
	settings.Metrics.Addr = ":9100"
	settings.Tracing = domain.TracingSettings{Endpoint: "otel:4317", Insecure: true}

	require.NoError(t, service.Save(&settings))

	got, err := service.Get()
	require.NoError(t, err)
	assert.Equal(t, settings, *got)
}

func TestSettingsService_Set(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr bool
		check   func(t *testing.T, s *domain.Settings)
	}{
		{"interval", "poll.interval", "2m", false, func(t *testing.T, s *domain.Settings) {
			assert.Equal(t, 2*time.Minute, s.Poll.Interval)
		}},
		{"bad interval", "poll.interval", "often", true, nil},
		{"negative interval", "poll.interval", "-1m", true, nil},
		{"longpoll", "dropbox.longpoll_seconds", "300", false, func(t *testing.T, s *domain.Settings) {
			assert.Equal(t, 300*time.Second, s.Dropbox.LongpollTimeout)
		}},
		{"longpoll out of range", "dropbox.longpoll_seconds", "5", true, nil},
		{"not a number", "poll.concurrency", "many", true, nil},
		{"backend", "position_store", "file", false, func(t *testing.T, s *domain.Settings) {
			assert.Equal(t, domain.PositionBackendFile, s.PositionBackend)
		}},
		{"bad backend", "position_store", "etcd", true, nil},
		{"tracing endpoint", "tracing.otlp_endpoint", "localhost:4317", false, func(t *testing.T, s *domain.Settings) {
			assert.Equal(t, "localhost:4317", s.Tracing.Endpoint)
			assert.False(t, s.Tracing.Insecure)
		}},
		{"tracing insecure", "tracing.insecure", "true", false, func(t *testing.T, s *domain.Settings) {
			assert.True(t, s.Tracing.Insecure)
		}},
		{"bad tracing insecure", "tracing.insecure", "maybe", true, nil},
		{"unknown key", "search.mode", "hybrid", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewConfigStore()
			_ = store.Set("sync_folder", "/srv/sync")
			service := NewSettingsService(store)

			err := service.Set(tt.key, tt.value)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			got, err := service.Get()
			require.NoError(t, err)
			tt.check(t, got)
		})
	}
}

func TestSettingsService_Set_WithoutSyncFolder(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore())

	require.NoError(t, service.Set("poll.interval", "1m"))
	require.NoError(t, service.Set("sync_folder", "/data"))
}

func TestSettingsService_GetSchedulerConfig(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("poll.interval", "15m")
	_ = store.Set("scheduler.history_prune.enabled", false)

	cfg := NewSettingsService(store).GetSchedulerConfig()

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.GetTaskConfig(domain.TaskIDAccountPoll).Interval)
	assert.False(t, cfg.GetTaskConfig(domain.TaskIDHistoryPrune).Enabled)
	assert.Equal(t, domain.DefaultHistoryRetention, cfg.HistoryRetention)

	_ = store.Set("scheduler.history_retention", 20)
	_ = store.Set("scheduler.account_poll.interval", "1h")
	_ = store.Set("scheduler.enabled", false)
	cfg = NewSettingsService(store).GetSchedulerConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, time.Hour, cfg.GetTaskConfig(domain.TaskIDAccountPoll).Interval)
	assert.Equal(t, 20, cfg.HistoryRetention)
}
