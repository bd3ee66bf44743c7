package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// TaskRunner executes one task invocation end to end: resolve identity,
// validate parameters, invoke, finalize.
type TaskRunner struct {
	store    Store
	registry *Registry
	logger   *slog.Logger
}

// NewTaskRunner constructs a runner with the given dependencies.
func NewTaskRunner(store Store, registry *Registry, logger *slog.Logger) *TaskRunner {
	return &TaskRunner{
		store:    store,
		registry: registry,
		logger:   logger,
	}
}

// Run executes the invocation addressed by ref on behalf of scheduler.
//
// Addressing and validation failures are recovered into a TaskResult and,
// when the invocation is backed by a row, persisted so the row never dangles
// with a null result. A missing row is the one exception: there is nothing to
// finalize, so invalid_task_id is returned with no persistence write. Faults
// raised by the task body itself are not absorbed; they propagate to the
// caller so the scheduler runner can apply backoff.
func (r *TaskRunner) Run(ctx context.Context, scheduler *Scheduler, ref TaskRef) (TaskResult, error) {
	if name, ok := ref.Name(); ok {
		return r.run(ctx, scheduler, NewEphemeralContext(r.store, r.logger, name, nil))
	}
	id, _ := ref.ID()
	tc, err := LoadStaticContext(ctx, r.store, r.logger, id)
	if errors.Is(err, ErrTaskNotFound) {
		r.logger.Warn("no pending task row", "task_id", id)
		return ResultInvalidTaskID, nil
	}
	if err != nil {
		return "", fmt.Errorf("load task %d: %w", id, err)
	}
	return r.run(ctx, scheduler, tc)
}

// RunNamed executes a named task immediately with the given parameters,
// without any backing row.
func (r *TaskRunner) RunNamed(ctx context.Context, scheduler *Scheduler, name string, params any) (TaskResult, error) {
	return r.run(ctx, scheduler, NewEphemeralContext(r.store, r.logger, name, params))
}

func (r *TaskRunner) run(ctx context.Context, scheduler *Scheduler, tc *TaskContext) (TaskResult, error) {
	tc.scheduler = scheduler

	entry, ok := r.registry.lookup(tc.TaskName())
	if !ok {
		r.logger.Warn("unknown task name", "task", tc.TaskName())
		return r.fail(ctx, scheduler, tc, ResultInvalidTaskName)
	}

	instance := entry.factory()
	var execute func(context.Context) (bool, error)
	switch task := instance.(type) {
	case paramTask:
		validated, err := task.validateRaw(tc.Params())
		if err != nil {
			tc.Error("parameter validation failed", err.Error())
			return r.fail(ctx, scheduler, tc, ResultInvalidParameters)
		}
		execute = func(ctx context.Context) (bool, error) {
			return task.executeRaw(ctx, tc, validated)
		}
	case Task:
		execute = func(ctx context.Context) (bool, error) {
			return task.Execute(ctx, tc)
		}
	default:
		panic(fmt.Sprintf("task %q factory returned %T", tc.TaskName(), instance))
	}

	tc.MarkExecutionStart()
	ok, err := execute(ctx)
	if err != nil {
		// Unexpected fault: leave the row pending and let the caller decide.
		return "", fmt.Errorf("%s: %w", tc.TaskName(), err)
	}
	tc.MarkExecutionFinished()

	result := ResultFailure
	if ok {
		result = ResultSuccess
	}
	if err := tc.Finalize(ctx, scheduler, result); err != nil {
		return result, err
	}
	return result, nil
}

// fail records an addressing or validation failure. Static contexts are
// finalized so the persisted row receives the failing result; ephemeral ones
// just report it back.
func (r *TaskRunner) fail(ctx context.Context, scheduler *Scheduler, tc *TaskContext, result TaskResult) (TaskResult, error) {
	if !tc.IsStatic() {
		return result, nil
	}
	if err := tc.Finalize(ctx, scheduler, result); err != nil {
		return result, err
	}
	return result, nil
}
