package core

import (
	"context"
)

// Task is a parameterless unit of work. The boolean return reports expected
// success or failure; a non-nil error is an unexpected fault and propagates
// past the runner to trigger loop-level backoff instead of being recorded as
// a normal result.
type Task interface {
	Execute(ctx context.Context, tc *TaskContext) (bool, error)
}

// TaskWithParams is a unit of work that accepts a validated parameter object.
// Validate must reject malformed raw input; Execute only ever sees values
// Validate accepted.
type TaskWithParams[P any] interface {
	Validate(raw any) (P, error)
	Execute(ctx context.Context, tc *TaskContext, params P) (bool, error)
}

// paramTask is the type-erased capability the runner discriminates on. The
// generic adapter below implements it for every TaskWithParams registration,
// so no runtime probing of concrete types is needed.
type paramTask interface {
	validateRaw(raw any) (any, error)
	executeRaw(ctx context.Context, tc *TaskContext, params any) (bool, error)
}

type paramAdapter[P any] struct {
	task TaskWithParams[P]
}

func (a paramAdapter[P]) validateRaw(raw any) (any, error) {
	return a.task.Validate(raw)
}

func (a paramAdapter[P]) executeRaw(ctx context.Context, tc *TaskContext, params any) (bool, error) {
	return a.task.Execute(ctx, tc, params.(P))
}
