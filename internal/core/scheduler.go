package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"admintask/internal/pqueue"
)

// invocation is one queued task execution with its target time. The queue
// orders by due time; equal times keep insertion order.
type invocation struct {
	ref TaskRef
	due time.Time
}

// InvokeConfig points Invoke at the out-of-process execution endpoint.
type InvokeConfig struct {
	URL    string
	Secret string
}

// invokeRequest is the wire body accepted by the invoke endpoint.
type invokeRequest struct {
	Password string `json:"password"`
	TaskID   *int64 `json:"taskId,omitempty"`
	TaskName string `json:"taskName,omitempty"`
}

// Scheduler owns one time-ordered queue of pending task invocations and
// drains the due ones through a TaskRunner. It is a thin shell: all identity
// resolution and execution logic lives in the runner.
type Scheduler struct {
	store  Store
	runner *TaskRunner
	logger *slog.Logger

	invoke InvokeConfig
	client *http.Client

	mu              sync.Mutex
	queue           *pqueue.Queue[invocation]
	queuedIDs       map[int64]struct{}
	executionCount  uint64
	invocationCount uint64
	lastExecution   time.Time
	lastInvocation  time.Time
}

// NewScheduler constructs a scheduler draining into the given runner.
func NewScheduler(store Store, runner *TaskRunner, logger *slog.Logger, invoke InvokeConfig) *Scheduler {
	return &Scheduler{
		store:  store,
		runner: runner,
		logger: logger,
		invoke: invoke,
		client: &http.Client{Timeout: 10 * time.Second},
		queue: pqueue.New(func(a, b invocation) bool {
			return a.due.Before(b.due)
		}),
		queuedIDs: make(map[int64]struct{}),
	}
}

// QueueTask enqueues an invocation to run after delay. It is synchronous and
// purely in-memory. ID-addressed invocations already sitting in the queue are
// not enqueued twice.
func (s *Scheduler) QueueTask(ref TaskRef, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := ref.ID(); ok {
		if _, queued := s.queuedIDs[id]; queued {
			return
		}
		s.queuedIDs[id] = struct{}{}
	}
	s.queue.Push(invocation{ref: ref, due: time.Now().Add(delay)})
}

// Execute drains and runs every invocation whose target time has passed, in
// due-time order, awaiting each one. A fault thrown by a task body propagates
// out so the scheduler runner can apply backoff; Execute does not swallow it.
func (s *Scheduler) Execute(ctx context.Context) error {
	for {
		s.mu.Lock()
		front, ok := s.queue.Front()
		if !ok || time.Now().Before(front.due) {
			s.mu.Unlock()
			break
		}
		s.queue.Pop()
		if id, isStatic := front.ref.ID(); isStatic {
			delete(s.queuedIDs, id)
		}
		s.mu.Unlock()

		result, err := s.runner.Run(ctx, s, front.ref)
		if err != nil {
			return err
		}
		s.logger.Debug("task invocation finished", "ref", front.ref.String(), "result", string(result))

		s.mu.Lock()
		s.invocationCount++
		s.lastInvocation = time.Now()
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.executionCount++
	s.lastExecution = time.Now()
	s.mu.Unlock()
	return nil
}

// ScheduleRequest is the outward-facing scheduling entry point's payload.
type ScheduleRequest struct {
	TaskName     string
	Params       any
	Delay        time.Duration
	IntervalMS   *int64
	ParentTaskID *int64
}

// ScheduleTask persists a new invocation row with a computed future timestamp
// and queues it. This is the one function the surrounding application calls
// to get work done asynchronously.
func (s *Scheduler) ScheduleTask(ctx context.Context, req ScheduleRequest) (int64, error) {
	params, err := json.Marshal(req.Params)
	if err != nil {
		return 0, fmt.Errorf("serialize task params: %w", err)
	}
	row := &TaskRow{
		Name:         req.TaskName,
		Params:       string(params),
		ParentTaskID: req.ParentTaskID,
		IntervalMS:   req.IntervalMS,
		ScheduledAt:  time.Now().Add(req.Delay),
	}
	id, err := s.store.InsertTask(ctx, row)
	if err != nil {
		return 0, fmt.Errorf("insert task row: %w", err)
	}
	s.QueueTask(ByID(id), req.Delay)
	return id, nil
}

// Invoke requests out-of-process execution of ref through the configured
// HTTP endpoint, authenticated by the shared secret.
func (s *Scheduler) Invoke(ctx context.Context, ref TaskRef) error {
	if s.invoke.URL == "" {
		return fmt.Errorf("no invoke endpoint configured")
	}
	body := invokeRequest{Password: s.invoke.Secret}
	if id, ok := ref.ID(); ok {
		body.TaskID = &id
	} else {
		body.TaskName, _ = ref.Name()
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("serialize invoke request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.invoke.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create invoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("invoke %s: %w", ref.String(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("invoke %s: endpoint returned status %d", ref.String(), resp.StatusCode)
	}
	return nil
}

// ClearTasks removes every queued-but-not-yet-executed invocation. Counters
// for work already done are untouched.
func (s *Scheduler) ClearTasks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.Clear()
	s.queuedIDs = make(map[int64]struct{})
}

// PendingCount returns the number of queued invocations.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// ExecutionCount returns the number of completed Execute drains.
func (s *Scheduler) ExecutionCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executionCount
}

// InvocationCount returns the number of task invocations run so far.
func (s *Scheduler) InvocationCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invocationCount
}

// LastExecution returns the monotonic timestamp of the latest drain.
func (s *Scheduler) LastExecution() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastExecution
}

// LastInvocation returns the monotonic timestamp of the latest task run.
func (s *Scheduler) LastInvocation() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastInvocation
}
