package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTaskNotFound is returned by Store lookups when no pending row exists for
// an identifier, either because the row is missing, already carries a result,
// or its stored parameters cannot be deserialized.
var ErrTaskNotFound = errors.New("task not found")

// TaskResult is the terminal outcome persisted for one task invocation.
type TaskResult string

const (
	ResultSuccess           TaskResult = "success"
	ResultFailure           TaskResult = "failure"
	ResultInvalidParameters TaskResult = "invalid_parameters"
	ResultInvalidTaskName   TaskResult = "invalid_task_name"
	ResultInvalidTaskID     TaskResult = "invalid_task_id"
)

// Severity classifies one invocation log entry.
type Severity string

const (
	SeverityDebug     Severity = "debug"
	SeverityInfo      Severity = "info"
	SeverityWarning   Severity = "warning"
	SeverityError     Severity = "error"
	SeverityException Severity = "exception"
)

// TaskLogEntry is one line of a task invocation's log. Time is milliseconds
// elapsed since the execution-start mark and is nil for entries recorded
// before the clock was started.
type TaskLogEntry struct {
	Severity Severity `json:"severity"`
	Time     *int64   `json:"time"`
	Message  string   `json:"message"`
	Data     []any    `json:"data,omitempty"`
}

// TaskRow is a persisted task invocation. Result, Logs and RuntimeMS stay
// nil until the invocation has been finalized.
type TaskRow struct {
	ID           int64
	Name         string
	Params       string
	ParentTaskID *int64
	IntervalMS   *int64
	ScheduledAt  time.Time
	Result       *TaskResult
	Logs         *string
	RuntimeMS    *int64
	CreatedAt    time.Time
}

// NextOccurrence describes the follow-up row created when a repeating task
// completes. It is inserted in the same transaction that records the result.
type NextOccurrence struct {
	Name        string
	Params      string
	IntervalMS  int64
	ScheduledAt time.Time
}

// Store abstracts the persistence layer used by the scheduler subsystem.
type Store interface {
	// InsertTask persists a new invocation row and returns its identifier.
	InsertTask(ctx context.Context, row *TaskRow) (int64, error)

	// GetPendingTask returns the row for id only if it has not yet recorded
	// a result. Missing or already-completed rows yield ErrTaskNotFound.
	GetPendingTask(ctx context.Context, id int64) (*TaskRow, error)

	// CompleteTask writes result, serialized logs and runtime back to the
	// row and, when next is non-nil, inserts the follow-up occurrence inside
	// the same transaction. Returns the new row's identifier, if any.
	CompleteTask(ctx context.Context, id int64, result TaskResult, logs string, runtimeMS *int64, next *NextOccurrence) (int64, error)

	// ListDueTasks returns pending rows scheduled at or before the given time.
	ListDueTasks(ctx context.Context, before time.Time) ([]*TaskRow, error)
}

// TaskRef addresses one task invocation either by the numeric identifier of a
// persisted row or by task name for ephemeral invocations. Exactly one of the
// two is set.
type TaskRef struct {
	id   int64
	name string
}

// ByID addresses a persisted invocation row.
func ByID(id int64) TaskRef {
	return TaskRef{id: id}
}

// ByName addresses an ephemeral, non-persisted invocation.
func ByName(name string) TaskRef {
	return TaskRef{name: name}
}

// ID returns the row identifier and whether this ref is ID-addressed.
func (r TaskRef) ID() (int64, bool) {
	return r.id, r.name == ""
}

// Name returns the task name and whether this ref is name-addressed.
func (r TaskRef) Name() (string, bool) {
	return r.name, r.name != ""
}

func (r TaskRef) String() string {
	if r.name != "" {
		return fmt.Sprintf("task %q", r.name)
	}
	return fmt.Sprintf("task #%d", r.id)
}
