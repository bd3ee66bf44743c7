package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore is an in-memory Store used by the core tests. It mirrors the
// SQLite repository's contract: pending means result is nil, completing an
// already-completed row is ErrTaskNotFound, and the chained next occurrence
// gets a fresh identifier.
type fakeStore struct {
	mu          sync.Mutex
	nextID      int64
	rows        map[int64]*TaskRow
	completions []completion
}

type completion struct {
	id        int64
	result    TaskResult
	logs      string
	runtimeMS *int64
	next      *NextOccurrence
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[int64]*TaskRow)}
}

func (f *fakeStore) InsertTask(_ context.Context, row *TaskRow) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	row.ID = f.nextID
	clone := *row
	f.rows[clone.ID] = &clone
	return clone.ID, nil
}

func (f *fakeStore) GetPendingTask(_ context.Context, id int64) (*TaskRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok || row.Result != nil {
		return nil, ErrTaskNotFound
	}
	clone := *row
	return &clone, nil
}

func (f *fakeStore) CompleteTask(_ context.Context, id int64, result TaskResult, logs string, runtimeMS *int64, next *NextOccurrence) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok || row.Result != nil {
		return 0, ErrTaskNotFound
	}
	row.Result = &result
	row.Logs = &logs
	row.RuntimeMS = runtimeMS
	f.completions = append(f.completions, completion{
		id:        id,
		result:    result,
		logs:      logs,
		runtimeMS: runtimeMS,
		next:      next,
	})
	if next == nil {
		return 0, nil
	}
	f.nextID++
	interval := next.IntervalMS
	f.rows[f.nextID] = &TaskRow{
		ID:          f.nextID,
		Name:        next.Name,
		Params:      next.Params,
		IntervalMS:  &interval,
		ScheduledAt: next.ScheduledAt,
	}
	return f.nextID, nil
}

func (f *fakeStore) ListDueTasks(_ context.Context, before time.Time) ([]*TaskRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []*TaskRow
	for _, row := range f.rows {
		if row.Result == nil && !row.ScheduledAt.After(before) {
			clone := *row
			due = append(due, &clone)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].ScheduledAt.Equal(due[j].ScheduledAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].ScheduledAt.Before(due[j].ScheduledAt)
	})
	return due, nil
}

func (f *fakeStore) completed() []completion {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]completion, len(f.completions))
	copy(out, f.completions)
	return out
}

// taskFunc adapts a closure into a Task for test registrations.
type taskFunc func(ctx context.Context, tc *TaskContext) (bool, error)

func (f taskFunc) Execute(ctx context.Context, tc *TaskContext) (bool, error) {
	return f(ctx, tc)
}

func registerFunc(r *Registry, name string, fn taskFunc) {
	r.Register(name, nil, func() Task { return fn })
}

// recorder collects the names of tasks as they run, in execution order.
type recorder struct {
	mu    sync.Mutex
	names []string
}

func (rec *recorder) add(name string) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.names = append(rec.names, name)
}

func (rec *recorder) snapshot() []string {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]string, len(rec.names))
	copy(out, rec.names)
	return out
}

// greetParams is the parameter object for the test TaskWithParams below.
type greetParams struct {
	Name string
}

type greetTask struct {
	executed *[]greetParams
}

func (t greetTask) Validate(raw any) (greetParams, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return greetParams{}, fmt.Errorf("expected a JSON object, got %T", raw)
	}
	name, ok := obj["name"].(string)
	if !ok || name == "" {
		return greetParams{}, fmt.Errorf("name is required")
	}
	return greetParams{Name: name}, nil
}

func (t greetTask) Execute(_ context.Context, tc *TaskContext, params greetParams) (bool, error) {
	tc.Info("greeting", params.Name)
	if t.executed != nil {
		*t.executed = append(*t.executed, params)
	}
	return true, nil
}

func newTestScheduler(store Store, registry *Registry) (*Scheduler, *TaskRunner) {
	logger := testLogger()
	runner := NewTaskRunner(store, registry, logger)
	scheduler := NewScheduler(store, runner, logger, InvokeConfig{})
	return scheduler, runner
}
