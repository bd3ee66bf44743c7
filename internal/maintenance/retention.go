// Package maintenance prunes completed task rows on a cron schedule so the
// tasks table does not grow without bound. Pending rows are never touched.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"admintask/internal/store"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Pruner deletes completed task rows older than the retention window.
type Pruner struct {
	store  *store.Store
	logger *slog.Logger
	maxAge time.Duration

	cron *cron.Cron
}

// NewPruner constructs a pruner running on the given 5-field cron spec.
func NewPruner(store *store.Store, logger *slog.Logger, maxAge time.Duration, spec string) (*Pruner, error) {
	schedule, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid retention cron spec: %w", err)
	}
	p := &Pruner{
		store:  store,
		logger: logger,
		maxAge: maxAge,
	}
	c := cron.New(cron.WithParser(cronParser))
	c.Schedule(schedule, cron.FuncJob(func() {
		p.PruneOnce(context.Background())
	}))
	p.cron = c
	return p, nil
}

// Start begins the pruning schedule.
func (p *Pruner) Start() {
	p.cron.Start()
}

// Stop stops the schedule and returns a context done when in-flight jobs
// finish.
func (p *Pruner) Stop() context.Context {
	return p.cron.Stop()
}

// PruneOnce deletes completed rows older than the retention window.
func (p *Pruner) PruneOnce(ctx context.Context) {
	cutoff := time.Now().Add(-p.maxAge)
	deleted, err := p.store.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		p.logger.Error("prune completed tasks", "err", err)
		return
	}
	if deleted > 0 {
		p.logger.Info("pruned completed tasks", "deleted", deleted, "cutoff", cutoff)
	}
}
