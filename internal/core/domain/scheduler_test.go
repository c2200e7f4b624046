package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSchedulerConfig(t *testing.T) {
	config := DefaultSchedulerConfig()

	assert.True(t, config.Enabled)
	assert.Equal(t, DefaultHistoryRetention, config.HistoryRetention)
	assert.Equal(t, TaskConfig{Enabled: true, Interval: DefaultPollInterval}, config.GetTaskConfig(TaskIDAccountPoll))
	assert.Equal(t, TaskConfig{Enabled: true, Interval: 24 * time.Hour}, config.GetTaskConfig(TaskIDHistoryPrune))
	assert.Zero(t, config.GetTaskConfig("unknown-task"))

	assert.Zero(t, (&SchedulerConfig{}).GetTaskConfig(TaskIDAccountPoll))
}

func TestScheduledTask_Due(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		task ScheduledTask
		want bool
	}{
		{"never scheduled", ScheduledTask{Enabled: true}, true},
		{"past", ScheduledTask{Enabled: true, NextRun: now.Add(-time.Second)}, true},
		{"exactly now", ScheduledTask{Enabled: true, NextRun: now}, true},
		{"future", ScheduledTask{Enabled: true, NextRun: now.Add(time.Minute)}, false},
		{"disabled", ScheduledTask{NextRun: now.Add(-time.Hour)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.task.Due(now))
		})
	}
}

func TestScheduledTask_Finish(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Second)
	task := ScheduledTask{Interval: 5 * time.Minute, Enabled: true}

	task.Finish(start, end, errors.New("box: 503"))
	assert.Equal(t, start, task.LastRun)
	assert.Equal(t, end.Add(5*time.Minute), task.NextRun)
	assert.Equal(t, "box: 503", task.LastError)
	assert.True(t, task.LastSuccess.IsZero())

	task.Finish(start, end, nil)
	assert.Empty(t, task.LastError)
	assert.Equal(t, end, task.LastSuccess)
}
