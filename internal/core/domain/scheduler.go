package domain

import "time"

// Task IDs for built-in tasks.
const (
	TaskIDAccountPoll  = "account-poll"
	TaskIDHistoryPrune = "history-prune"
)

// DefaultPollInterval is how often every account is polled.
const DefaultPollInterval = 5 * time.Minute

// DefaultHistoryRetention is how many cycle reports are kept per account.
const DefaultHistoryRetention = 100

// ScheduledTask is the persisted state of a recurring task.
type ScheduledTask struct {
	ID       string
	Name     string
	Interval time.Duration
	Enabled  bool

	LastRun     time.Time
	NextRun     time.Time
	LastSuccess time.Time

	// LastError is the message of the last failed run, empty after a success.
	LastError string
}

// Due reports whether the task should run at now.
// A task that never ran, or has no next run, is due immediately.
func (t *ScheduledTask) Due(now time.Time) bool {
	return t.Enabled && !t.NextRun.After(now)
}

// Finish records a run that started at started and ended at ended.
func (t *ScheduledTask) Finish(started, ended time.Time, err error) {
	t.LastRun = started
	t.NextRun = ended.Add(t.Interval)
	if err != nil {
		t.LastError = err.Error()
		return
	}
	t.LastError = ""
	t.LastSuccess = ended
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	// Enabled is the master switch.
	Enabled bool

	// HistoryRetention bounds stored cycle reports per account.
	HistoryRetention int

	TaskConfigs map[string]TaskConfig
}

// TaskConfig configures one task.
type TaskConfig struct {
	Enabled  bool
	Interval time.Duration
}

// GetTaskConfig returns a task's configuration, zero when unset.
func (c *SchedulerConfig) GetTaskConfig(taskID string) TaskConfig {
	if c.TaskConfigs == nil {
		return TaskConfig{}
	}
	return c.TaskConfigs[taskID]
}

// DefaultSchedulerConfig polls every DefaultPollInterval and prunes daily.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:          true,
		HistoryRetention: DefaultHistoryRetention,
		TaskConfigs: map[string]TaskConfig{
			TaskIDAccountPoll:  {Enabled: true, Interval: DefaultPollInterval},
			TaskIDHistoryPrune: {Enabled: true, Interval: 24 * time.Hour},
		},
	}
}
