package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driven"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driving"
)

// mockSchedulerStore keeps task state in memory; history comes from mockCycleHistory.
type mockSchedulerStore struct {
	mockCycleHistory

	taskMu  sync.RWMutex
	tasks   map[string]domain.ScheduledTask
	saves   int
	listErr error
	getErr  error
}

func newMockSchedulerStore() *mockSchedulerStore {
	return &mockSchedulerStore{tasks: make(map[string]domain.ScheduledTask)}
}

func (m *mockSchedulerStore) GetTask(_ context.Context, taskID string) (*domain.ScheduledTask, error) {
	m.taskMu.RLock()
	defer m.taskMu.RUnlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	task, ok := m.tasks[taskID]
	if !ok {
		return nil, nil
	}
	return &task, nil
}

func (m *mockSchedulerStore) ListTasks(_ context.Context) ([]domain.ScheduledTask, error) {
	m.taskMu.RLock()
	defer m.taskMu.RUnlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	tasks := make([]domain.ScheduledTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (m *mockSchedulerStore) SaveTask(_ context.Context, task domain.ScheduledTask) error {
	m.taskMu.Lock()
	defer m.taskMu.Unlock()
	m.tasks[task.ID] = task
	m.saves++
	return nil
}

func (m *mockSchedulerStore) task(id string) domain.ScheduledTask {
	m.taskMu.RLock()
	defer m.taskMu.RUnlock()
	return m.tasks[id]
}

// mockPollOrchestrator implements driving.PollOrchestrator for testing.
type mockPollOrchestrator struct {
	mu         sync.Mutex
	pollAllN   int
	reports    []domain.CycleReport
	pollAllErr error
}

func (m *mockPollOrchestrator) Poll(_ context.Context, _ string) (*domain.CycleReport, error) {
	return &domain.CycleReport{}, nil
}

func (m *mockPollOrchestrator) PollAll(_ context.Context) ([]domain.CycleReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollAllN++
	return m.reports, m.pollAllErr
}

func (m *mockPollOrchestrator) Status(_ context.Context, _ string) (*domain.AccountStatus, error) {
	return &domain.AccountStatus{}, nil
}

func (m *mockPollOrchestrator) History(_ context.Context, _ string, _ int) ([]domain.CycleReport, error) {
	return nil, nil
}

func (m *mockPollOrchestrator) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pollAllN
}

var (
	_ driven.SchedulerStore    = (*mockSchedulerStore)(nil)
	_ driving.PollOrchestrator = (*mockPollOrchestrator)(nil)
)

// ==================== Scheduler Tests ====================

func TestNewScheduler_Tick(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), nil)
	assert.Equal(t, time.Minute, scheduler.tick)

	config := domain.DefaultSchedulerConfig()
	config.TaskConfigs[domain.TaskIDAccountPoll] = domain.TaskConfig{Enabled: true, Interval: 20 * time.Second}
	scheduler = NewScheduler(config, newMockSchedulerStore(), nil)
	assert.Equal(t, 20*time.Second, scheduler.tick)
}

func TestNewScheduler_DefaultsRetention(t *testing.T) {
	scheduler := NewScheduler(domain.SchedulerConfig{Enabled: true}, newMockSchedulerStore(), nil)
	assert.Equal(t, domain.DefaultHistoryRetention, scheduler.config.HistoryRetention)
}

func TestScheduler_StartPollsImmediately(t *testing.T) {
	orch := &mockPollOrchestrator{}
	store := newMockSchedulerStore()
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, orch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scheduler.Start(ctx) }()

	assert.Eventually(t, func() bool { return orch.calls() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	require.NoError(t, scheduler.Stop())

	poll := store.task(domain.TaskIDAccountPoll)
	assert.False(t, poll.LastSuccess.IsZero())
	assert.True(t, poll.NextRun.After(poll.LastRun))
}

func TestScheduler_StopReturnsNil(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), &mockPollOrchestrator{})

	done := make(chan error, 1)
	go func() { done <- scheduler.Start(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, scheduler.Stop())
	assert.NoError(t, <-done)
	assert.NoError(t, scheduler.Stop())
}

func TestScheduler_DoubleStart(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), &mockPollOrchestrator{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- scheduler.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)

	assert.NoError(t, scheduler.Start(context.Background()))

	cancel()
	<-done
	_ = scheduler.Stop()
}

func TestScheduler_Disabled(t *testing.T) {
	config := domain.DefaultSchedulerConfig()
	config.Enabled = false
	orch := &mockPollOrchestrator{}
	store := newMockSchedulerStore()
	scheduler := NewScheduler(config, store, orch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scheduler.Start(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Zero(t, orch.calls())
	assert.Zero(t, store.saves)
}

func TestScheduler_SyncTasks(t *testing.T) {
	store := newMockSchedulerStore()
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, nil)
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	scheduler.now = func() time.Time { return now }

	require.NoError(t, scheduler.syncTasks(context.Background()))

	poll := store.task(domain.TaskIDAccountPoll)
	assert.Equal(t, "Account Poll", poll.Name)
	assert.True(t, poll.Enabled)
	assert.True(t, poll.Due(now))

	prune := store.task(domain.TaskIDHistoryPrune)
	assert.Equal(t, now.Add(24*time.Hour), prune.NextRun)
}

func TestScheduler_SyncTasks_IntervalChangeReschedules(t *testing.T) {
	store := newMockSchedulerStore()
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveTask(ctx, domain.ScheduledTask{
		ID: domain.TaskIDAccountPoll, Interval: time.Hour, Enabled: true, NextRun: now.Add(time.Hour),
	}))

	config := domain.DefaultSchedulerConfig()
	config.TaskConfigs[domain.TaskIDAccountPoll] = domain.TaskConfig{Enabled: true, Interval: 10 * time.Minute}
	scheduler := NewScheduler(config, store, nil)
	scheduler.now = func() time.Time { return now }

	require.NoError(t, scheduler.syncTasks(ctx))

	poll := store.task(domain.TaskIDAccountPoll)
	assert.Equal(t, 10*time.Minute, poll.Interval)
	assert.Equal(t, now.Add(10*time.Minute), poll.NextRun)
}

func TestScheduler_SyncTasks_DisablesStoredTask(t *testing.T) {
	store := newMockSchedulerStore()
	ctx := context.Background()
	require.NoError(t, store.SaveTask(ctx, domain.ScheduledTask{ID: domain.TaskIDHistoryPrune, Interval: time.Hour, Enabled: true}))

	config := domain.DefaultSchedulerConfig()
	config.TaskConfigs[domain.TaskIDHistoryPrune] = domain.TaskConfig{Enabled: false}
	config.TaskConfigs[domain.TaskIDAccountPoll] = domain.TaskConfig{Enabled: false}
	scheduler := NewScheduler(config, store, nil)

	require.NoError(t, scheduler.syncTasks(ctx))

	assert.False(t, store.task(domain.TaskIDHistoryPrune).Enabled)
	_, err := store.GetTask(ctx, domain.TaskIDAccountPoll)
	require.NoError(t, err)
	assert.Empty(t, store.task(domain.TaskIDAccountPoll).ID, "disabled tasks are not created")
}

func TestScheduler_SyncTasks_StoreError(t *testing.T) {
	store := newMockSchedulerStore()
	store.getErr = errors.New("database is locked")
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, nil)

	err := scheduler.syncTasks(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
}

func TestScheduler_PollAccountsJoinsFailures(t *testing.T) {
	orch := &mockPollOrchestrator{reports: []domain.CycleReport{
		{AccountID: "a", State: domain.PollStateIdle},
		{AccountID: "b", State: domain.PollStateFailed, Error: "token expired"},
	}}
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), orch)

	err := scheduler.pollAccounts(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "account b: token expired")
	assert.NotContains(t, err.Error(), "account a")

	orch.pollAllErr = errors.New("listing accounts")
	assert.EqualError(t, scheduler.pollAccounts(context.Background()), "listing accounts")

	assert.NoError(t, NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), nil).pollAccounts(context.Background()))
}

func TestScheduler_PruneHistory(t *testing.T) {
	store := newMockSchedulerStore()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(context.Background(), domain.CycleReport{AccountID: "a1"}))
	}
	config := domain.DefaultSchedulerConfig()
	config.HistoryRetention = 2
	scheduler := NewScheduler(config, store, nil)

	require.NoError(t, scheduler.pruneHistory(context.Background()))

	assert.Equal(t, []int{2}, store.pruned)
	assert.Equal(t, 2, store.len())
}

func TestScheduler_RunDue(t *testing.T) {
	store := newMockSchedulerStore()
	orch := &mockPollOrchestrator{reports: []domain.CycleReport{{AccountID: "a", State: domain.PollStateFailed, Error: "boom"}}}
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, orch)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.SaveTask(ctx, domain.ScheduledTask{
		ID: domain.TaskIDAccountPoll, Interval: time.Hour, Enabled: true, NextRun: now.Add(-time.Minute),
	}))
	require.NoError(t, store.SaveTask(ctx, domain.ScheduledTask{
		ID: domain.TaskIDHistoryPrune, Interval: time.Hour, Enabled: true, NextRun: now.Add(time.Hour),
	}))

	scheduler.runDue(ctx)
	scheduler.wg.Wait()

	assert.Equal(t, 1, orch.calls())
	assert.Empty(t, store.pruned)

	poll := store.task(domain.TaskIDAccountPoll)
	assert.Contains(t, poll.LastError, "account a: boom")
	assert.True(t, poll.LastSuccess.IsZero())
	assert.True(t, poll.NextRun.After(now))
}

func TestScheduler_LaunchSkipsActiveAndUnknown(t *testing.T) {
	store := newMockSchedulerStore()
	orch := &mockPollOrchestrator{}
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, orch)

	scheduler.active[domain.TaskIDAccountPoll] = true
	scheduler.launch(context.Background(), domain.ScheduledTask{ID: domain.TaskIDAccountPoll, Enabled: true})
	scheduler.launch(context.Background(), domain.ScheduledTask{ID: "unknown-task", Enabled: true})
	scheduler.wg.Wait()

	assert.Zero(t, orch.calls())
	assert.Zero(t, store.saves)
}
