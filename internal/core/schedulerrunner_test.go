package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLoopBackoffDoublesUnderSustainedFault(t *testing.T) {
	store := newFakeStore()
	registry := NewRegistry()
	registerFunc(registry, "boom", func(context.Context, *TaskContext) (bool, error) {
		return false, errors.New("still broken")
	})
	scheduler, _ := newTestScheduler(store, registry)

	r := NewRunnerForTesting(testLogger(), time.Second, 8)
	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) bool {
		slept = append(slept, d)
		if len(slept) == 5 {
			return false
		}
		// Keep the fault alive for the next iteration.
		scheduler.QueueTask(ByName("boom"), 0)
		return true
	}

	r.Attach(scheduler)
	scheduler.ClearTasks()
	scheduler.QueueTask(ByName("boom"), 0)

	r.RunLoop(context.Background())

	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		8 * time.Second,
	}, slept)
	assert.Equal(t, 8, r.Penalty())
}

func TestRunLoopBackoffResetsAfterCleanIteration(t *testing.T) {
	store := newFakeStore()
	registry := NewRegistry()
	registerFunc(registry, "boom", func(context.Context, *TaskContext) (bool, error) {
		return false, errors.New("broken once")
	})
	scheduler, _ := newTestScheduler(store, registry)

	r := NewRunnerForTesting(testLogger(), time.Second, 32)
	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) bool {
		slept = append(slept, d)
		return len(slept) < 3
	}

	r.Attach(scheduler)
	scheduler.ClearTasks()
	scheduler.QueueTask(ByName("boom"), 0)

	r.RunLoop(context.Background())

	// One fault, then two clean passes: the penalty resets fully instead of
	// decaying, so the second sleep is already back at the base interval.
	assert.Equal(t, []time.Duration{
		1 * time.Second,
		1 * time.Second,
		1 * time.Second,
	}, slept)
	assert.Equal(t, 1, r.Penalty())
}

func TestAttachQueuesPopulateImmediately(t *testing.T) {
	store := newFakeStore()
	registry := NewRegistry()
	scheduler, _ := newTestScheduler(store, registry)

	r := NewRunnerForTesting(testLogger(), time.Second, 32)
	r.Attach(scheduler)

	require.Equal(t, 1, scheduler.PendingCount())
	require.NoError(t, scheduler.Execute(context.Background()))
	assert.Equal(t, uint64(1), scheduler.InvocationCount())
}

func TestRunLoopWhileActivePanics(t *testing.T) {
	r := NewRunnerForTesting(testLogger(), time.Second, 32)
	r.abort = func() {}
	assert.PanicsWithValue(t, "scheduler runner loop is already running", func() {
		r.RunLoop(context.Background())
	})
}

func TestAbortWhileIdlePanics(t *testing.T) {
	r := NewRunnerForTesting(testLogger(), time.Second, 32)
	assert.PanicsWithValue(t, "scheduler runner is not running", r.Abort)
}

func TestConfigureWhileActivePanics(t *testing.T) {
	r := NewRunnerForTesting(testLogger(), time.Second, 32)
	r.abort = func() {}
	assert.PanicsWithValue(t, "scheduler runner cannot be configured while running", func() {
		r.Configure(nil, time.Minute, 16)
	})
}

func TestAbortStopsRunningLoop(t *testing.T) {
	r := NewRunnerForTesting(testLogger(), time.Millisecond, 32)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.RunLoop(context.Background())
	}()

	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.abort != nil
	}, time.Second, time.Millisecond)

	r.Abort()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after Abort")
	}
}

func TestRunLoopStopsOnContextCancel(t *testing.T) {
	r := NewRunnerForTesting(testLogger(), time.Millisecond, 32)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.RunLoop(ctx)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after context cancel")
	}
}

func TestDetachRemovesSchedulerFromIteration(t *testing.T) {
	store := newFakeStore()
	registry := NewRegistry()
	registerFunc(registry, "boom", func(context.Context, *TaskContext) (bool, error) {
		return false, errors.New("never drained")
	})
	scheduler, _ := newTestScheduler(store, registry)

	r := NewRunnerForTesting(testLogger(), time.Second, 32)
	r.Attach(scheduler)
	scheduler.ClearTasks()
	scheduler.QueueTask(ByName("boom"), 0)
	r.Detach(scheduler)

	assert.Equal(t, 0, r.iterate(context.Background()))
	assert.Equal(t, 1, scheduler.PendingCount())
}

func TestRunnerSingleton(t *testing.T) {
	assert.Same(t, Runner(), Runner())
}
