package core

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultBaseInterval is the sleep between loop iterations with no
	// penalty applied.
	DefaultBaseInterval = 10 * time.Second

	// DefaultPenaltyCeiling caps the exception-penalty multiplier.
	DefaultPenaltyCeiling = 32
)

var (
	runnerOnce   sync.Once
	globalRunner *SchedulerRunner
)

// SchedulerRunner is the control loop that periodically drains every
// attached scheduler. A fault in any scheduler slows the whole loop down via
// a process-wide exponential penalty; that couples backoff across schedulers
// deliberately, trading latency for stability under fault.
type SchedulerRunner struct {
	logger *slog.Logger

	mu             sync.Mutex
	baseInterval   time.Duration
	penaltyCeiling int
	schedulers     []*Scheduler
	penalty        int
	abort          context.CancelFunc
	loopID         uint64

	// sleep is swapped out by tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) bool
}

// Runner returns the process-wide scheduler runner, created lazily on first
// access with default timing. Use Configure before starting the loop to apply
// deployment settings.
func Runner() *SchedulerRunner {
	runnerOnce.Do(func() {
		globalRunner = newSchedulerRunner(slog.Default(), DefaultBaseInterval, DefaultPenaltyCeiling)
	})
	return globalRunner
}

// NewRunnerForTesting bypasses the singleton so tests get isolated instances.
func NewRunnerForTesting(logger *slog.Logger, baseInterval time.Duration, penaltyCeiling int) *SchedulerRunner {
	return newSchedulerRunner(logger, baseInterval, penaltyCeiling)
}

func newSchedulerRunner(logger *slog.Logger, baseInterval time.Duration, penaltyCeiling int) *SchedulerRunner {
	if baseInterval <= 0 {
		baseInterval = DefaultBaseInterval
	}
	if penaltyCeiling < 1 {
		penaltyCeiling = DefaultPenaltyCeiling
	}
	return &SchedulerRunner{
		logger:         logger,
		baseInterval:   baseInterval,
		penaltyCeiling: penaltyCeiling,
		penalty:        1,
		sleep:          sleepContext,
	}
}

// Configure applies timing settings. Calling it while the loop is active is a
// programming error.
func (r *SchedulerRunner) Configure(logger *slog.Logger, baseInterval time.Duration, penaltyCeiling int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.abort != nil {
		panic("scheduler runner cannot be configured while running")
	}
	if logger != nil {
		r.logger = logger
	}
	if baseInterval > 0 {
		r.baseInterval = baseInterval
	}
	if penaltyCeiling >= 1 {
		r.penaltyCeiling = penaltyCeiling
	}
}

// Attach adds a scheduler to the loop and immediately queues the well-known
// populate task on it with zero delay, so a fresh scheduler picks up its due
// persisted work before the next natural tick.
func (r *SchedulerRunner) Attach(s *Scheduler) {
	r.mu.Lock()
	r.schedulers = append(r.schedulers, s)
	r.mu.Unlock()
	s.QueueTask(ByName(PopulateTaskName), 0)
}

// Detach removes a scheduler from the loop. In-flight executions are not
// interrupted.
func (r *SchedulerRunner) Detach(s *Scheduler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, attached := range r.schedulers {
		if attached == s {
			r.schedulers = append(r.schedulers[:i], r.schedulers[i+1:]...)
			return
		}
	}
}

// RunLoop runs the control loop until Abort is called or ctx ends. Starting
// it while a loop is already active is a programming error.
func (r *SchedulerRunner) RunLoop(ctx context.Context) {
	r.mu.Lock()
	if r.abort != nil {
		r.mu.Unlock()
		panic("scheduler runner loop is already running")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.abort = cancel
	r.penalty = 1
	r.loopID++
	id := r.loopID
	r.mu.Unlock()

	defer func() {
		cancel()
		r.mu.Lock()
		// Abort may already have cleared the handle, and a fresh loop may
		// own a new one by now.
		if r.loopID == id && r.abort != nil {
			r.abort = nil
		}
		r.mu.Unlock()
	}()

	for {
		// Cancellation is cooperative: checked once per iteration boundary,
		// never mid-drain.
		if loopCtx.Err() != nil {
			return
		}
		faults := r.iterate(loopCtx)

		// The sleep reflects the penalty accumulated before this iteration,
		// so under sustained fault the intervals run 1x, 2x, 4x and so on.
		// A clean pass resets fully; there is no partial decay.
		r.mu.Lock()
		var interval time.Duration
		if faults == 0 {
			r.penalty = 1
			interval = r.baseInterval
		} else {
			interval = time.Duration(r.penalty) * r.baseInterval
			for i := 0; i < faults && r.penalty < r.penaltyCeiling; i++ {
				r.penalty *= 2
				if r.penalty > r.penaltyCeiling {
					r.penalty = r.penaltyCeiling
				}
			}
		}
		r.mu.Unlock()

		if !r.sleep(loopCtx, interval) {
			return
		}
	}
}

// iterate drains every attached scheduler once and reports how many threw.
func (r *SchedulerRunner) iterate(ctx context.Context) int {
	r.mu.Lock()
	schedulers := make([]*Scheduler, len(r.schedulers))
	copy(schedulers, r.schedulers)
	r.mu.Unlock()

	faults := 0
	for _, s := range schedulers {
		if err := s.Execute(ctx); err != nil {
			faults++
			r.logger.Error("scheduler execution failed", "err", err)
		}
	}
	return faults
}

// Abort stops the loop cooperatively; the in-progress iteration completes.
// Aborting while idle is a programming error.
func (r *SchedulerRunner) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.abort == nil {
		panic("scheduler runner is not running")
	}
	r.abort()
	r.abort = nil
}

// Penalty returns the current exception-penalty multiplier.
func (r *SchedulerRunner) Penalty() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.penalty
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
