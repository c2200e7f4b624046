package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driven"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driving"
	"github.com/custodia-labs/cloudpoll/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// job is the body of a scheduled task.
type job struct {
	name string
	run  func(ctx context.Context) error
}

// Scheduler runs the account poll and history prune tasks on their
// intervals. Task state survives restarts through the SchedulerStore.
type Scheduler struct {
	config domain.SchedulerConfig
	store  driven.SchedulerStore
	poller driving.PollOrchestrator
	jobs   map[string]job
	tick   time.Duration
	now    func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	active  map[string]bool
}

// NewScheduler creates a scheduler. Due tasks are checked every minute,
// or at the shortest enabled task interval when that is smaller.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	poller driving.PollOrchestrator,
) *Scheduler {
	if config.HistoryRetention <= 0 {
		config.HistoryRetention = domain.DefaultHistoryRetention
	}
	tick := time.Minute
	for _, cfg := range config.TaskConfigs {
		if cfg.Enabled && cfg.Interval > 0 && cfg.Interval < tick {
			tick = cfg.Interval
		}
	}
	s := &Scheduler{
		config: config,
		store:  store,
		poller: poller,
		tick:   tick,
		now:    time.Now,
		active: make(map[string]bool),
	}
	s.jobs = map[string]job{
		domain.TaskIDAccountPoll:  {name: "Account Poll", run: s.pollAccounts},
		domain.TaskIDHistoryPrune: {name: "History Prune", run: s.pruneHistory},
	}
	return s
}

// Start runs the scheduler loop until ctx ends or Stop is called.
// It returns ctx.Err() when the context ends and nil after Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	if !s.config.Enabled {
		logger.Info("scheduler disabled")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		}
	}

	if err := s.syncTasks(ctx); err != nil {
		logger.Warn("scheduler: syncing tasks: %v", err)
	}
	s.runDue(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// Stop ends the loop and waits for running tasks.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// syncTasks brings stored task state in line with the configuration.
// New tasks are due at once, except the prune which first waits an interval.
func (s *Scheduler) syncTasks(ctx context.Context) error {
	var errs []error
	for id, j := range s.jobs {
		cfg := s.config.GetTaskConfig(id)
		task, err := s.store.GetTask(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", id, err))
			continue
		}

		switch {
		case task == nil && !cfg.Enabled:
			continue
		case task == nil:
			task = &domain.ScheduledTask{ID: id, Name: j.name, Interval: cfg.Interval, Enabled: true}
			if id == domain.TaskIDHistoryPrune {
				task.NextRun = s.now().Add(cfg.Interval)
			}
		default:
			if cfg.Enabled && task.Interval != cfg.Interval {
				task.Interval = cfg.Interval
				task.NextRun = s.now().Add(cfg.Interval)
			}
			task.Enabled = cfg.Enabled
		}

		if err := s.store.SaveTask(ctx, *task); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// runDue starts every enabled task whose next run has passed.
func (s *Scheduler) runDue(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Warn("scheduler: listing tasks: %v", err)
		return
	}
	now := s.now()
	for _, task := range tasks {
		if task.Due(now) {
			s.launch(ctx, task)
		}
	}
}

// launch runs one task in the background unless it is still running.
func (s *Scheduler) launch(ctx context.Context, task domain.ScheduledTask) {
	j, ok := s.jobs[task.ID]
	if !ok {
		logger.Warn("scheduler: unknown task %s", task.ID)
		return
	}

	s.mu.Lock()
	if s.active[task.ID] {
		s.mu.Unlock()
		return
	}
	s.active[task.ID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.active, task.ID)
			s.mu.Unlock()
		}()

		started := s.now()
		err := j.run(ctx)
		task.Finish(started, s.now(), err)
		if err != nil {
			logger.Warnw("scheduled task failed", "task", task.ID, "error", err)
		} else {
			logger.Debugw("scheduled task finished", "task", task.ID, "next_run", task.NextRun)
		}

		if err := s.store.SaveTask(context.WithoutCancel(ctx), task); err != nil {
			logger.Warn("scheduler: saving task %s: %v", task.ID, err)
		}
	}()
}

// pollAccounts runs one cycle per account. Failed accounts are joined
// into the returned error.
func (s *Scheduler) pollAccounts(ctx context.Context) error {
	if s.poller == nil {
		return nil
	}
	reports, err := s.poller.PollAll(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, r := range reports {
		if r.State == domain.PollStateFailed {
			errs = append(errs, fmt.Errorf("account %s: %s", r.AccountID, r.Error))
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) pruneHistory(ctx context.Context) error {
	n, err := s.store.Prune(ctx, s.config.HistoryRetention)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Infow("cycle history pruned", "deleted", n, "keep", s.config.HistoryRetention)
	}
	return nil
}
