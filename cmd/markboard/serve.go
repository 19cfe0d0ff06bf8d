package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lksh/markboard/internal/application/query"
	"github.com/lksh/markboard/internal/infrastructure/scheduler"
	"github.com/lksh/markboard/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/lksh/markboard/internal/interface/http"
	"github.com/lksh/markboard/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with periodic standings sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func runServe(ctx context.Context) error {
	log.Info("starting markboard",
		"env", cfg.App.Environment,
		"contests", cfg.Ejudge.ContestFrom+".."+cfg.Ejudge.ContestTo,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 1. STORAGE AND APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	a, err := newServerApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 2. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = newScheduler(a)
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() {
			if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
				log.Warn("failed to stop scheduler", "error", err)
			}
		}()
	} else {
		log.Info("scheduler disabled, standings are fetched on demand")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	deps := httpapi.Dependencies{
		Results:  query.NewGetResultsHandler(a.provider),
		Ranked:   query.NewGetRankedTableHandler(a.provider),
		Personal: query.NewGetPersonalResultHandler(a.provider),
		Sync:     a.sync,
		Logger: logger.New(logger.Options{
			Output:    os.Stderr,
			Level:     logger.ParseLevel(cfg.Observability.LogLevel),
			AddCaller: true,
		}).With(logger.Component("http")),
		HealthChecker: a.healthChecker(),
	}
	if a.snapshotRepo != nil {
		deps.Snapshots = query.NewListSnapshotsHandler(a.snapshotRepo)
		deps.SnapshotResults = query.NewGetSnapshotResultsHandler(a.snapshotRepo)
	}
	if sched != nil {
		deps.Jobs = sched
	}

	serverCfg := httpapi.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	serverCfg.RateLimitPerMinute = cfg.HTTP.RateLimit
	serverCfg.AdminAPIKeyHash = cfg.HTTP.AdminAPIKeyHash
	serverCfg.Version = cfg.App.Version

	server := httpapi.NewServer(serverCfg, deps)
	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. WAIT FOR SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}

	log.Info("markboard stopped")
	return nil
}

func newScheduler(a *app) (*scheduler.Scheduler, error) {
	sched := scheduler.New(scheduler.Config{
		Logger:     log,
		JobTimeout: cfg.Scheduler.JobTimeout,
		RunOnStart: true,
	})

	syncJob := jobs.NewSyncStandingsJob(a.sync, log)
	if err := sched.Register(syncJob, cfg.Scheduler.SyncInterval); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", syncJob.Name(), err)
	}

	if a.repo != nil && cfg.Scheduler.SnapshotRetention > 0 {
		pruneJob := jobs.NewPruneSnapshotsJob(a.repo, cfg.Scheduler.SnapshotRetention, log)
		if err := sched.Register(pruneJob, cfg.Scheduler.PruneInterval); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", pruneJob.Name(), err)
		}
	}

	return sched, nil
}
