package maintenance

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admintask/internal/core"
	"admintask/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewPrunerRejectsInvalidCronSpec(t *testing.T) {
	_, err := NewPruner(nil, testLogger(), time.Hour, "not a cron spec")
	assert.Error(t, err)
}

func TestPruneOnceDeletesOnlyCompletedRows(t *testing.T) {
	s, err := store.Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	defer s.DB.Close()
	ctx := context.Background()

	doneID, err := s.InsertTask(ctx, &core.TaskRow{
		Name: "done", Params: `{}`, ScheduledAt: time.Now(),
	})
	require.NoError(t, err)
	_, err = s.CompleteTask(ctx, doneID, core.ResultSuccess, `[]`, nil, nil)
	require.NoError(t, err)

	pendingID, err := s.InsertTask(ctx, &core.TaskRow{
		Name: "pending", Params: `{}`, ScheduledAt: time.Now(),
	})
	require.NoError(t, err)

	pruner, err := NewPruner(s, testLogger(), -time.Minute, "0 3 * * *")
	require.NoError(t, err)

	// maxAge below zero puts the cutoff in the future, so every completed
	// row qualifies.
	pruner.PruneOnce(ctx)

	_, err = s.GetTask(ctx, doneID)
	assert.ErrorIs(t, err, core.ErrTaskNotFound)
	_, err = s.GetPendingTask(ctx, pendingID)
	assert.NoError(t, err)
}

func TestPruneOnceKeepsRecentCompletedRows(t *testing.T) {
	s, err := store.Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	defer s.DB.Close()
	ctx := context.Background()

	doneID, err := s.InsertTask(ctx, &core.TaskRow{
		Name: "done", Params: `{}`, ScheduledAt: time.Now(),
	})
	require.NoError(t, err)
	_, err = s.CompleteTask(ctx, doneID, core.ResultSuccess, `[]`, nil, nil)
	require.NoError(t, err)

	pruner, err := NewPruner(s, testLogger(), 24*time.Hour, "0 3 * * *")
	require.NoError(t, err)
	pruner.PruneOnce(ctx)

	_, err = s.GetTask(ctx, doneID)
	assert.NoError(t, err)
}
