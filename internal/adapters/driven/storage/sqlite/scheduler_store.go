package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driven"
)

// schedulerStore implements driven.SchedulerStore over scheduled_tasks
// and cycle_history. Timestamps are stored as Unix nanoseconds so that
// ordering by column is chronological.
type schedulerStore struct {
	store *Store
}

var _ driven.SchedulerStore = (*schedulerStore)(nil)

const taskColumns = `id, name, interval_ns, enabled, last_run_ns, next_run_ns, last_success_ns, last_error`

// ==================== Tasks ====================

func (s *schedulerStore) GetTask(ctx context.Context, taskID string) (*domain.ScheduledTask, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = ?`, taskID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return task, err
}

func (s *schedulerStore) ListTasks(ctx context.Context) ([]domain.ScheduledTask, error) {
	rows, err := s.store.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying scheduled tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.ScheduledTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scheduled tasks: %w", err)
	}
	return tasks, nil
}

func (s *schedulerStore) SaveTask(ctx context.Context, task domain.ScheduledTask) error {
	if task.ID == "" {
		return fmt.Errorf("%w: task id is empty", domain.ErrInvalidInput)
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			interval_ns = excluded.interval_ns,
			enabled = excluded.enabled,
			last_run_ns = excluded.last_run_ns,
			next_run_ns = excluded.next_run_ns,
			last_success_ns = excluded.last_success_ns,
			last_error = excluded.last_error
	`, task.ID, task.Name, int64(task.Interval), boolToInt(task.Enabled),
		unixNanos(task.LastRun), unixNanos(task.NextRun), unixNanos(task.LastSuccess),
		nullString(task.LastError))
	if err != nil {
		return fmt.Errorf("saving scheduled task %s: %w", task.ID, err)
	}
	return nil
}

func scanTask(row rowScanner) (*domain.ScheduledTask, error) {
	var task domain.ScheduledTask
	var interval int64
	var enabled int
	var lastRun, nextRun, lastSuccess sql.NullInt64
	var lastError sql.NullString

	if err := row.Scan(&task.ID, &task.Name, &interval, &enabled,
		&lastRun, &nextRun, &lastSuccess, &lastError); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning scheduled task: %w", err)
	}
	task.Interval = time.Duration(interval)
	task.Enabled = enabled == 1
	task.LastRun = fromUnixNanos(lastRun)
	task.NextRun = fromUnixNanos(nextRun)
	task.LastSuccess = fromUnixNanos(lastSuccess)
	task.LastError = lastError.String
	return &task, nil
}

// ==================== Cycle history ====================

const cycleColumns = `cycle_id, account_id, account_type, old_position, new_position, state,
	initial, committed, cancelled, batches, attempts, dropped, handler_errors,
	actions, started_ns, ended_ns, error`

func (s *schedulerStore) Record(ctx context.Context, r domain.CycleReport) error {
	if r.CycleID == "" || r.AccountID == "" {
		return fmt.Errorf("%w: cycle report needs cycle and account ids", domain.ErrInvalidInput)
	}
	actions, err := json.Marshal(r.Actions)
	if err != nil {
		return fmt.Errorf("encoding actions: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cycle_history (`+cycleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.CycleID, r.AccountID, string(r.AccountType), r.OldPosition, r.NewPosition, string(r.State),
		boolToInt(r.Initial), boolToInt(r.Committed), boolToInt(r.Cancelled),
		r.Batches, r.Attempts, r.Dropped, r.HandlerErrors,
		string(actions), r.StartedAt.UnixNano(), r.EndedAt.UnixNano(), nullString(r.Error))
	if err != nil {
		return fmt.Errorf("recording cycle %s: %w", r.CycleID, err)
	}
	return nil
}

func (s *schedulerStore) Recent(ctx context.Context, accountID string, limit int) ([]domain.CycleReport, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+cycleColumns+` FROM cycle_history
		WHERE account_id = ?
		ORDER BY started_ns DESC
		LIMIT ?
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying cycle history: %w", err)
	}
	defer rows.Close()

	var reports []domain.CycleReport
	for rows.Next() {
		r, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cycle history: %w", err)
	}
	return reports, nil
}

func (s *schedulerStore) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.store.db.ExecContext(ctx, `
		DELETE FROM cycle_history
		WHERE cycle_id IN (
			SELECT cycle_id FROM (
				SELECT cycle_id,
					ROW_NUMBER() OVER (PARTITION BY account_id ORDER BY started_ns DESC) AS rn
				FROM cycle_history
			) WHERE rn > ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning cycle history: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanCycle(row rowScanner) (*domain.CycleReport, error) {
	var r domain.CycleReport
	var accountType, state, actions string
	var initial, committed, cancelled int
	var started, ended int64
	var errMsg sql.NullString

	if err := row.Scan(&r.CycleID, &r.AccountID, &accountType, &r.OldPosition, &r.NewPosition, &state,
		&initial, &committed, &cancelled, &r.Batches, &r.Attempts, &r.Dropped, &r.HandlerErrors,
		&actions, &started, &ended, &errMsg); err != nil {
		return nil, fmt.Errorf("scanning cycle: %w", err)
	}

	r.AccountType = domain.AccountType(accountType)
	r.State = domain.PollState(state)
	r.Initial = initial == 1
	r.Committed = committed == 1
	r.Cancelled = cancelled == 1
	r.StartedAt = time.Unix(0, started).UTC()
	r.EndedAt = time.Unix(0, ended).UTC()
	r.Error = errMsg.String
	if err := json.Unmarshal([]byte(actions), &r.Actions); err != nil {
		return nil, fmt.Errorf("decoding actions of cycle %s: %w", r.CycleID, err)
	}
	if r.Actions == nil {
		r.Actions = make(map[domain.Action]int)
	}
	return &r, nil
}

// ==================== Helpers ====================

func unixNanos(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixNano()
}

func fromUnixNanos(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return time.Unix(0, n.Int64).UTC()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
