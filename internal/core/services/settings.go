package services

import (
	"fmt"
	"strconv"
	"time"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driven"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
const (
	keySyncFolder      = "sync_folder"
	keyDataDir         = "data_dir"
	keyPositionStore   = "position_store"
	keyPollInterval    = "poll.interval"
	keyPollConcurrency = "poll.concurrency"
	keyPollAttempts    = "poll.max_attempts"
	keyPollTimeout     = "poll.cycle_timeout"
	keyBoxWindow       = "box.window_seconds"
	keyDropboxLongpoll = "dropbox.longpoll_seconds"
	keyMetricsAddr     = "metrics.addr"
	keyTracingEndpoint = "tracing.otlp_endpoint"
	keyTracingInsecure = "tracing.insecure"
)

// SettingsService manages project settings.
type SettingsService struct {
	configStore driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{configStore: configStore}
}

// Get retrieves current settings.
func (s *SettingsService) Get() (*domain.Settings, error) {
	defaults := domain.DefaultSettings()

	settings := &domain.Settings{
		SyncFolder:      s.getString(keySyncFolder, defaults.SyncFolder),
		DataDir:         s.getString(keyDataDir, defaults.DataDir),
		PositionBackend: domain.PositionBackend(s.getString(keyPositionStore, string(defaults.PositionBackend))),
		Poll: domain.PollSettings{
			Interval:     s.getDuration(keyPollInterval, defaults.Poll.Interval),
			Concurrency:  s.getInt(keyPollConcurrency, defaults.Poll.Concurrency),
			MaxAttempts:  s.getInt(keyPollAttempts, defaults.Poll.MaxAttempts),
			CycleTimeout: s.getDuration(keyPollTimeout, defaults.Poll.CycleTimeout),
		},
		Box: domain.BoxSettings{
			Window: s.getSeconds(keyBoxWindow, defaults.Box.Window),
		},
		Dropbox: domain.DropboxSettings{
			LongpollTimeout: s.getSeconds(keyDropboxLongpoll, defaults.Dropbox.LongpollTimeout),
		},
		Metrics: domain.MetricsSettings{
			Addr: s.configStore.GetString(keyMetricsAddr),
		},
		Tracing: domain.TracingSettings{
			Endpoint: s.configStore.GetString(keyTracingEndpoint),
			Insecure: s.getBool(keyTracingInsecure, false),
		},
	}

	return settings, nil
}

// Save persists settings.
func (s *SettingsService) Save(settings *domain.Settings) error {
	values := []struct {
		key   string
		value any
	}{
		{keySyncFolder, settings.SyncFolder},
		{keyDataDir, settings.DataDir},
		{keyPositionStore, string(settings.PositionBackend)},
		{keyPollInterval, settings.Poll.Interval.String()},
		{keyPollConcurrency, settings.Poll.Concurrency},
		{keyPollAttempts, settings.Poll.MaxAttempts},
		{keyPollTimeout, settings.Poll.CycleTimeout.String()},
		{keyBoxWindow, int(settings.Box.Window.Seconds())},
		{keyDropboxLongpoll, int(settings.Dropbox.LongpollTimeout.Seconds())},
		{keyMetricsAddr, settings.Metrics.Addr},
		{keyTracingEndpoint, settings.Tracing.Endpoint},
		{keyTracingInsecure, settings.Tracing.Insecure},
	}
	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}
	return nil
}

// Set updates one key. The resulting settings must validate.
func (s *SettingsService) Set(key, value string) error {
	settings, err := s.Get()
	if err != nil {
		return err
	}

	var stored any = value
	switch key {
	case keySyncFolder:
		settings.SyncFolder = value
	case keyDataDir:
		settings.DataDir = value
	case keyPositionStore:
		settings.PositionBackend = domain.PositionBackend(value)
	case keyMetricsAddr:
		settings.Metrics.Addr = value
	case keyTracingEndpoint:
		settings.Tracing.Endpoint = value
	case keyTracingInsecure:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: %s must be true or false", domain.ErrInvalidInput, key)
		}
		stored = b
		settings.Tracing.Insecure = b
	case keyPollInterval, keyPollTimeout:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, key, err)
		}
		if key == keyPollInterval {
			settings.Poll.Interval = d
		} else {
			settings.Poll.CycleTimeout = d
		}
	case keyPollConcurrency, keyPollAttempts, keyBoxWindow, keyDropboxLongpoll:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidInput, key)
		}
		stored = n
		switch key {
		case keyPollConcurrency:
			settings.Poll.Concurrency = n
		case keyPollAttempts:
			settings.Poll.MaxAttempts = n
		case keyBoxWindow:
			settings.Box.Window = time.Duration(n) * time.Second
		case keyDropboxLongpoll:
			settings.Dropbox.LongpollTimeout = time.Duration(n) * time.Second
		}
	default:
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}

	// sync_folder may still be unset while the project is being configured.
	if settings.SyncFolder != "" {
		if err := settings.Validate(); err != nil {
			return err
		}
	}

	return s.configStore.Set(key, stored)
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.Settings {
	return domain.DefaultSettings()
}

// Keys returns every settable key.
func (s *SettingsService) Keys() []string {
	return []string{
		keySyncFolder, keyDataDir, keyPositionStore,
		keyPollInterval, keyPollConcurrency, keyPollAttempts, keyPollTimeout,
		keyBoxWindow, keyDropboxLongpoll, keyMetricsAddr,
		keyTracingEndpoint, keyTracingInsecure,
	}
}

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	val := s.configStore.GetDuration(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getSeconds(key string, defaultVal time.Duration) time.Duration {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return time.Duration(val) * time.Second
}

// GetSchedulerConfig returns the scheduler configuration.
// The poll task interval follows poll.interval unless overridden.
func (s *SettingsService) GetSchedulerConfig() domain.SchedulerConfig {
	defaults := domain.DefaultSchedulerConfig()

	if _, exists := s.configStore.Get("scheduler.enabled"); exists {
		defaults.Enabled = s.configStore.GetBool("scheduler.enabled")
	}
	defaults.HistoryRetention = s.getInt("scheduler.history_retention", defaults.HistoryRetention)

	pollCfg := defaults.TaskConfigs[domain.TaskIDAccountPoll]
	pollCfg.Interval = s.getDuration(keyPollInterval, pollCfg.Interval)
	defaults.TaskConfigs[domain.TaskIDAccountPoll] = pollCfg

	// Map from task ID to config key (underscore version for TOML)
	taskKeys := map[string]string{
		domain.TaskIDAccountPoll:  "account_poll",
		domain.TaskIDHistoryPrune: "history_prune",
	}

	for taskID, configKey := range taskKeys {
		prefix := "scheduler." + configKey + "."

		taskCfg := defaults.TaskConfigs[taskID]
		taskCfg.Enabled = s.getBool(prefix+"enabled", taskCfg.Enabled)
		taskCfg.Interval = s.getDuration(prefix+"interval", taskCfg.Interval)
		defaults.TaskConfigs[taskID] = taskCfg
	}

	return defaults
}
