package core

import (
	"context"
	"time"
)

// PopulateTaskName is the well-known task queued on every freshly attached
// scheduler so it picks up due persisted work immediately.
const PopulateTaskName = "populate"

// DefaultPopulateLookahead bounds how far into the future populate pulls
// pending rows into the in-memory queue.
const DefaultPopulateLookahead = time.Minute

// PopulateLookahead overrides the built-in populate task's window. Set once
// at startup, before any scheduler runs.
var PopulateLookahead = DefaultPopulateLookahead

// populateTask loads pending persisted rows due within the lookahead window
// and queues them by ID on the scheduler that ran it. Rows already queued are
// skipped by the scheduler's ID dedupe.
type populateTask struct{}

func registerPopulate(r *Registry) {
	r.Register(PopulateTaskName,
		func(any) string { return "load due persisted tasks into the queue" },
		func() Task { return populateTask{} })
}

func (populateTask) Execute(ctx context.Context, tc *TaskContext) (bool, error) {
	scheduler := tc.Scheduler()
	if scheduler == nil {
		tc.Warning("populate ran outside a scheduler, nothing to queue onto")
		return false, nil
	}
	rows, err := tc.Store().ListDueTasks(ctx, time.Now().Add(PopulateLookahead))
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		delay := time.Until(row.ScheduledAt)
		if delay < 0 {
			delay = 0
		}
		scheduler.QueueTask(ByID(row.ID), delay)
	}
	tc.Info("queued pending persisted tasks", len(rows))
	return true, nil
}
