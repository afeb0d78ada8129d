package main

import (
	"context"
	"errors"

	"github.com/openlearn/admin-api/internal/app"
	"github.com/openlearn/admin-api/internal/config"
	"github.com/openlearn/admin-api/internal/infra/jobs"
	"github.com/openlearn/admin-api/pkg/logger"
)

// Workers holds all background worker instances.
type Workers struct {
	RoleRefresh *app.RoleRefreshScheduler
	JobWorker   *jobs.Worker

	bulk   *app.BulkOperationService
	hub    interface{ Run(ctx context.Context) }
	cancel context.CancelFunc
}

// WorkerDeps contains dependencies needed to create workers.
type WorkerDeps struct {
	Config   *config.Config
	Log      *logger.Logger
	Repos    *Repositories
	Services *Services
}

// NewWorkers initializes all background workers.
func NewWorkers(deps *WorkerDeps) (*Workers, error) {
	cfg := deps.Config
	log := deps.Log
	svc := deps.Services

	w := &Workers{
		bulk: svc.BulkOperation,
		hub:  svc.WebSocketHub,
	}

	if cfg.Roles.RefreshSchedule != "" {
		scheduler, err := app.NewRoleRefreshScheduler(svc.Roles, cfg.Roles.RefreshSchedule, 0, log)
		if err != nil {
			return nil, err
		}
		w.RoleRefresh = scheduler
	}

	// The worker drains the audit queue; it only exists in queue mode.
	if cfg.Audit.Mode == config.AuditModeQueue {
		worker, err := jobs.NewWorker(jobs.WorkerConfig{
			RedisAddr:     cfg.Redis.Addr(),
			RedisPassword: cfg.Redis.Password,
			RedisDB:       cfg.Redis.DB,
			Concurrency:   cfg.Queue.Concurrency,
		}, log, jobs.WithAuditStore(deps.Repos.Audit))
		if err != nil {
			return nil, err
		}
		w.JobWorker = worker
		log.Info("audit job worker initialized", "concurrency", cfg.Queue.Concurrency)
	}

	return w, nil
}

// Start starts all background workers.
func (w *Workers) Start(ctx context.Context, log *logger.Logger) error {
	ctx, w.cancel = context.WithCancel(ctx)

	go w.hub.Run(ctx)
	log.Info("websocket hub started")

	w.bulk.Start()

	if w.RoleRefresh != nil {
		w.RoleRefresh.Start()
	}

	if w.JobWorker != nil {
		if err := w.JobWorker.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops all background workers. Running bulk operations are given
// until ctx expires to finish their dispatched items.
func (w *Workers) Stop(ctx context.Context, log *logger.Logger) error {
	var errs []error

	log.Info("stopping bulk operations...")
	if err := w.bulk.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	if w.RoleRefresh != nil {
		w.RoleRefresh.Stop()
	}

	// The job worker goes after the executor so queued audit entries from
	// the last items are still accepted by Redis.
	if w.JobWorker != nil {
		w.JobWorker.Stop()
		log.Info("job worker stopped")
	}

	if w.cancel != nil {
		w.cancel()
		log.Info("websocket hub stopped")
	}
	return errors.Join(errs...)
}
