package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admintask/internal/api"
	"admintask/internal/config"
	"admintask/internal/core"
	"admintask/internal/logging"
	"admintask/internal/maintenance"
	admintaskmcp "admintask/internal/mcp"
	"admintask/internal/notify"
	"admintask/internal/store"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	logger := logging.New(cfg.LogLevel)

	baseCtx := context.Background()
	storeInst, err := store.Open(baseCtx, cfg.StateDir)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer storeInst.DB.Close()

	core.PopulateLookahead = cfg.Runner.PopulateLookahead

	registry := core.NewRegistry()
	registerTasks(registry, cfg, logger)

	taskRunner := core.NewTaskRunner(storeInst, registry, logger)
	scheduler := core.NewScheduler(storeInst, taskRunner, logger, core.InvokeConfig{
		URL:    cfg.Invoke.URL,
		Secret: cfg.Invoke.Secret,
	})

	runner := core.Runner()
	runner.Configure(logger, cfg.Runner.BaseInterval, cfg.Runner.PenaltyCeiling)
	runner.Attach(scheduler)

	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		runner.RunLoop(ctx)
	}()

	pruner, err := maintenance.NewPruner(storeInst, logger, cfg.Retention.MaxAge, cfg.Retention.CronSpec)
	if err != nil {
		logger.Error("create pruner", "err", err)
		os.Exit(1)
	}
	pruner.Start()

	switch cfg.Mode {
	case "http":
		runHTTPMode(cfg, storeInst, scheduler, taskRunner, registry, logger, cancel, loopDone, pruner)
	case "mcp":
		runMCPMode(storeInst, scheduler, taskRunner, registry, logger, cancel, loopDone, pruner, cfg.ShutdownGrace)
	case "both":
		runBothMode(cfg, storeInst, scheduler, taskRunner, registry, logger, cancel, loopDone, pruner)
	}
}

// registerTasks wires the task library into the registry. The populate task
// is registered by the registry itself.
func registerTasks(registry *core.Registry, cfg *config.Config, logger *slog.Logger) {
	var notifier notify.Notifier = notify.NoOpNotifier{}
	if cfg.Bark.Enabled {
		bark, err := notify.NewBarkNotifier(cfg.Bark.URL)
		if err != nil {
			logger.Warn("bark notifier disabled", "err", err)
		} else {
			notifier = bark
		}
	}
	notify.RegisterTask(registry, notifier)
}

func runHTTPMode(cfg *config.Config, storeInst *store.Store, scheduler *core.Scheduler, taskRunner *core.TaskRunner, registry *core.Registry, logger *slog.Logger, cancel context.CancelFunc, loopDone <-chan struct{}, pruner *maintenance.Pruner) {
	server := api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, cfg.Invoke.Secret, storeInst, scheduler, taskRunner, registry, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}
	stopScheduling(logger, cancel, loopDone, pruner, cfg.ShutdownGrace)
}

func runMCPMode(storeInst *store.Store, scheduler *core.Scheduler, taskRunner *core.TaskRunner, registry *core.Registry, logger *slog.Logger, cancel context.CancelFunc, loopDone <-chan struct{}, pruner *maintenance.Pruner, grace time.Duration) {
	mcpServer := admintaskmcp.NewMCPServer(storeInst, scheduler, taskRunner, registry, logger)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Info("received signal, shutting down...")
		cancel()
	}()

	if err := mcpServer.Run(); err != nil {
		logger.Error("mcp server error", "err", err)
	}
	stopScheduling(logger, cancel, loopDone, pruner, grace)
}

func runBothMode(cfg *config.Config, storeInst *store.Store, scheduler *core.Scheduler, taskRunner *core.TaskRunner, registry *core.Registry, logger *slog.Logger, cancel context.CancelFunc, loopDone <-chan struct{}, pruner *maintenance.Pruner) {
	mcpServer := admintaskmcp.NewMCPServer(storeInst, scheduler, taskRunner, registry, logger)
	mcpErr := make(chan error, 1)
	go func() {
		if err := mcpServer.Run(); err != nil {
			mcpErr <- err
		}
	}()

	server := api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, cfg.Invoke.Secret, storeInst, scheduler, taskRunner, registry, logger)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	case err := <-mcpErr:
		logger.Error("mcp server error", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}
	stopScheduling(logger, cancel, loopDone, pruner, cfg.ShutdownGrace)
}

// stopScheduling cancels the runner loop and waits briefly for the current
// iteration to finish; in-flight task executions complete.
func stopScheduling(logger *slog.Logger, cancel context.CancelFunc, loopDone <-chan struct{}, pruner *maintenance.Pruner, grace time.Duration) {
	cancel()
	select {
	case <-loopDone:
	case <-time.After(grace):
		logger.Warn("scheduler runner stop timed out")
	}
	select {
	case <-pruner.Stop().Done():
	case <-time.After(grace):
		logger.Warn("pruner stop timed out")
	}
	logger.Info("shutdown complete")
}
