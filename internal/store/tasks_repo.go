package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"admintask/internal/core"
)

const taskColumns = `id, name, params, parent_task_id, interval_ms, scheduled_at, result, logs, runtime_ms, created_at`

// InsertTask persists a new invocation row and returns its identifier.
func (s *Store) InsertTask(ctx context.Context, task *core.TaskRow) (int64, error) {
	task.CreatedAt = time.Now().UTC()
	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO tasks (name, params, parent_task_id, interval_ms, scheduled_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, task.Name, task.Params, nullableInt64(task.ParentTaskID), nullableInt64(task.IntervalMS),
		task.ScheduledAt.UTC().Format(time.RFC3339Nano), task.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert task id: %w", err)
	}
	task.ID = id
	return id, nil
}

// GetPendingTask returns the row for id only while it has no recorded result.
func (s *Store) GetPendingTask(ctx context.Context, id int64) (*core.TaskRow, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks WHERE id = ? AND result IS NULL
	`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

// GetTask returns the row for id regardless of completion state.
func (s *Store) GetTask(ctx context.Context, id int64) (*core.TaskRow, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks WHERE id = ?
	`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

// CompleteTask records the invocation outcome and, when next is non-nil,
// creates the follow-up occurrence. Both writes share one transaction: they
// succeed or fail together.
func (s *Store) CompleteTask(ctx context.Context, id int64, result core.TaskResult, logs string, runtimeMS *int64, next *core.NextOccurrence) (int64, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin complete task: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET result = ?, logs = ?, runtime_ms = ?
		WHERE id = ? AND result IS NULL
	`, string(result), logs, nullableInt64(runtimeMS), id)
	if err != nil {
		return 0, fmt.Errorf("complete task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if rows == 0 {
		return 0, core.ErrTaskNotFound
	}

	var newID int64
	if next != nil {
		now := time.Now().UTC()
		ins, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (name, params, interval_ms, scheduled_at, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, next.Name, next.Params, next.IntervalMS,
			next.ScheduledAt.UTC().Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
		if err != nil {
			return 0, fmt.Errorf("insert next occurrence: %w", err)
		}
		newID, err = ins.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("next occurrence id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit complete task: %w", err)
	}
	return newID, nil
}

// ListDueTasks returns pending rows scheduled at or before the given time,
// earliest first.
func (s *Store) ListDueTasks(ctx context.Context, before time.Time) ([]*core.TaskRow, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE result IS NULL AND scheduled_at <= ?
		ORDER BY scheduled_at ASC, id ASC
	`, before.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("list due tasks: %w", err)
	}
	return collectTasks(rows)
}

// ListTasks returns recent rows, newest first.
func (s *Store) ListTasks(ctx context.Context, limit, offset int) ([]*core.TaskRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return collectTasks(rows)
}

// DeleteCompletedBefore removes completed rows created before cutoff and
// returns how many were deleted. Pending rows are never pruned.
func (s *Store) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM tasks
		WHERE result IS NOT NULL AND created_at < ?
	`, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("delete completed tasks: %w", err)
	}
	return res.RowsAffected()
}

func collectTasks(rows *sql.Rows) ([]*core.TaskRow, error) {
	defer rows.Close()
	var tasks []*core.TaskRow
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func scanTask(scanner interface {
	Scan(dest ...any) error
}) (*core.TaskRow, error) {
	var (
		id           int64
		name         string
		params       string
		parentTaskID sql.NullInt64
		intervalMS   sql.NullInt64
		scheduledAt  string
		result       sql.NullString
		logs         sql.NullString
		runtimeMS    sql.NullInt64
		createdAt    string
	)
	if err := scanner.Scan(&id, &name, &params, &parentTaskID, &intervalMS, &scheduledAt, &result, &logs, &runtimeMS, &createdAt); err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	task := &core.TaskRow{
		ID:          id,
		Name:        name,
		Params:      params,
		ScheduledAt: mustParseTime(scheduledAt),
		CreatedAt:   mustParseTime(createdAt),
	}
	if parentTaskID.Valid {
		task.ParentTaskID = &parentTaskID.Int64
	}
	if intervalMS.Valid {
		task.IntervalMS = &intervalMS.Int64
	}
	if result.Valid {
		r := core.TaskResult(result.String)
		task.Result = &r
	}
	if logs.Valid {
		task.Logs = &logs.String
	}
	if runtimeMS.Valid {
		task.RuntimeMS = &runtimeMS.Int64
	}
	return task, nil
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func mustParseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		panic(fmt.Sprintf("invalid stored time %q: %v", value, err))
	}
	return t
}
