package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// TaskContext binds one task identity, parameter set, log buffer and
// execution clock to a single invocation attempt, and owns the finalize-time
// persistence side effects.
type TaskContext struct {
	store     Store
	logger    *slog.Logger
	scheduler *Scheduler

	taskID       *int64
	taskName     string
	params       any
	rawParams    string
	parentTaskID *int64
	intervalMS   *int64

	entries []TaskLogEntry

	started    bool
	finished   bool
	startedAt  time.Time
	finishedAt time.Time
}

// NewEphemeralContext builds a context for an immediate, non-persisted
// invocation from a task name and already-available parameters.
func NewEphemeralContext(store Store, logger *slog.Logger, name string, params any) *TaskContext {
	return &TaskContext{
		store:    store,
		logger:   logger,
		taskName: name,
		params:   params,
		entries:  make([]TaskLogEntry, 0, 8),
	}
}

// LoadStaticContext builds a context from a persisted invocation row. The
// lookup only succeeds while the row has no recorded result; malformed stored
// parameters are treated as a missing row rather than a fault.
func LoadStaticContext(ctx context.Context, store Store, logger *slog.Logger, id int64) (*TaskContext, error) {
	row, err := store.GetPendingTask(ctx, id)
	if err != nil {
		return nil, err
	}
	var params any
	if row.Params != "" {
		if err := json.Unmarshal([]byte(row.Params), &params); err != nil {
			logger.Debug("stored task parameters are not valid JSON", "task_id", id, "err", err)
			return nil, ErrTaskNotFound
		}
	}
	return &TaskContext{
		store:        store,
		logger:       logger,
		taskID:       &row.ID,
		taskName:     row.Name,
		params:       params,
		rawParams:    row.Params,
		parentTaskID: row.ParentTaskID,
		intervalMS:   row.IntervalMS,
		entries:      make([]TaskLogEntry, 0, 8),
	}, nil
}

// TaskName returns the name this invocation resolves against the registry.
func (tc *TaskContext) TaskName() string { return tc.taskName }

// TaskID returns the backing row identifier and whether one exists.
func (tc *TaskContext) TaskID() (int64, bool) {
	if tc.taskID == nil {
		return 0, false
	}
	return *tc.taskID, true
}

// IsStatic reports whether the invocation is backed by a persisted row.
func (tc *TaskContext) IsStatic() bool { return tc.taskID != nil }

// Params returns the deserialized invocation parameters.
func (tc *TaskContext) Params() any { return tc.params }

// Store exposes the persistence collaborator to tasks that need it.
func (tc *TaskContext) Store() Store { return tc.store }

// Scheduler returns the scheduler that popped this invocation, or nil for
// direct runner calls made outside any scheduler.
func (tc *TaskContext) Scheduler() *Scheduler { return tc.scheduler }

// SetInterval requests that the task re-run after d following successful
// completion. Callable mid-execution; tasks often only learn their next best
// interval by doing work.
func (tc *TaskContext) SetInterval(d time.Duration) {
	ms := d.Milliseconds()
	tc.intervalMS = &ms
}

// ClearInterval cancels any pending repetition.
func (tc *TaskContext) ClearInterval() {
	tc.intervalMS = nil
}

// Interval returns the currently requested repeat interval, if any.
func (tc *TaskContext) Interval() (time.Duration, bool) {
	if tc.intervalMS == nil {
		return 0, false
	}
	return time.Duration(*tc.intervalMS) * time.Millisecond, true
}

// MarkExecutionStart starts the invocation's execution clock. Starting twice
// is a programming error.
func (tc *TaskContext) MarkExecutionStart() {
	if tc.started {
		panic(fmt.Sprintf("task %q execution has already started", tc.taskName))
	}
	tc.started = true
	tc.startedAt = time.Now()
}

// MarkExecutionFinished stops the execution clock. Finishing before a start,
// or finishing twice, are programming errors.
func (tc *TaskContext) MarkExecutionFinished() {
	if !tc.started {
		panic(fmt.Sprintf("task %q execution has not started yet", tc.taskName))
	}
	if tc.finished {
		panic(fmt.Sprintf("task %q execution has already finished", tc.taskName))
	}
	tc.finished = true
	tc.finishedAt = time.Now()
}

// Runtime returns the measured execution duration once both marks are
// present.
func (tc *TaskContext) Runtime() (time.Duration, bool) {
	if !tc.started || !tc.finished {
		return 0, false
	}
	return tc.finishedAt.Sub(tc.startedAt), true
}

func (tc *TaskContext) Debug(message string, data ...any)     { tc.log(SeverityDebug, message, data) }
func (tc *TaskContext) Info(message string, data ...any)      { tc.log(SeverityInfo, message, data) }
func (tc *TaskContext) Warning(message string, data ...any)   { tc.log(SeverityWarning, message, data) }
func (tc *TaskContext) Error(message string, data ...any)     { tc.log(SeverityError, message, data) }
func (tc *TaskContext) Exception(message string, data ...any) { tc.log(SeverityException, message, data) }

func (tc *TaskContext) log(severity Severity, message string, data []any) {
	entry := TaskLogEntry{Severity: severity, Message: message, Data: data}
	if tc.started {
		elapsed := time.Since(tc.startedAt).Milliseconds()
		entry.Time = &elapsed
	}
	tc.entries = append(tc.entries, entry)
}

// Entries returns the accumulated invocation log in arrival order.
func (tc *TaskContext) Entries() []TaskLogEntry {
	return tc.entries
}

// Finalize persists the invocation result and arranges the next occurrence.
//
// A manually re-run invocation (parent task set) discards any inherited
// repeat interval so repeats never cascade from a one-off rerun. Static
// contexts write result, logs and runtime to their row and, when an interval
// survives, create the follow-up row in the same transaction before queueing
// it. Ephemeral contexts with an interval simply re-queue by name.
func (tc *TaskContext) Finalize(ctx context.Context, scheduler *Scheduler, result TaskResult) error {
	if tc.parentTaskID != nil && tc.intervalMS != nil {
		tc.Debug("ignoring repeat interval on manually repeated task", *tc.parentTaskID)
		tc.intervalMS = nil
	}

	if tc.taskID != nil {
		logs, err := json.Marshal(tc.entries)
		if err != nil {
			return fmt.Errorf("serialize task logs: %w", err)
		}
		var runtimeMS *int64
		if runtime, ok := tc.Runtime(); ok {
			ms := runtime.Milliseconds()
			runtimeMS = &ms
		}
		var next *NextOccurrence
		var delay time.Duration
		if tc.intervalMS != nil {
			delay = time.Duration(*tc.intervalMS) * time.Millisecond
			next = &NextOccurrence{
				Name:        tc.taskName,
				Params:      tc.rawParams,
				IntervalMS:  *tc.intervalMS,
				ScheduledAt: time.Now().Add(delay),
			}
		}
		newID, err := tc.store.CompleteTask(ctx, *tc.taskID, result, string(logs), runtimeMS, next)
		if err != nil {
			return fmt.Errorf("finalize task %d: %w", *tc.taskID, err)
		}
		if next != nil && scheduler != nil {
			scheduler.QueueTask(ByID(newID), delay)
		}
		return nil
	}

	if tc.intervalMS != nil && scheduler != nil {
		scheduler.QueueTask(ByName(tc.taskName), time.Duration(*tc.intervalMS)*time.Millisecond)
	}
	return nil
}
