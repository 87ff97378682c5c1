// Package worker drains the project indexing queue in the background.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/codecontextai/codecontext/pkg/db"
)

// Queue is the claim surface the worker polls
type Queue interface {
	ClaimNextIndexingProject(staleAfter time.Duration) (*db.Project, error)
}

// Runner performs the work for one claimed project
type Runner interface {
	Run(ctx context.Context, project *db.Project) error
}

// RunnerFunc adapts a function to the Runner interface
type RunnerFunc func(ctx context.Context, project *db.Project) error

func (f RunnerFunc) Run(ctx context.Context, project *db.Project) error { return f(ctx, project) }

// Config holds worker configuration
type Config struct {
	PollInterval time.Duration
	StaleClaim   time.Duration
}

// IndexWorker claims queued projects and runs indexing for them
type IndexWorker struct {
	queue        Queue
	runner       Runner
	pollInterval time.Duration
	staleClaim   time.Duration
}

// NewIndexWorker creates a worker with defaults filled in
func NewIndexWorker(cfg *Config, queue Queue, runner Runner) *IndexWorker {
	if cfg == nil {
		cfg = &Config{}
	}
	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = 2 * time.Second
	}
	staleClaim := cfg.StaleClaim
	if staleClaim == 0 {
		staleClaim = 10 * time.Minute
	}
	return &IndexWorker{
		queue:        queue,
		runner:       runner,
		pollInterval: pollInterval,
		staleClaim:   staleClaim,
	}
}

// Start polls the queue until the context is cancelled. Claimed projects
// abandoned by a crashed worker become reclaimable after the stale window.
func (w *IndexWorker) Start(ctx context.Context) error {
	slog.Info("Index worker started", "poll_interval", w.pollInterval)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Drain immediately on startup
	w.drain(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Index worker stopped")
			return ctx.Err()
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain processes queued projects until the queue is empty
func (w *IndexWorker) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		project, err := w.queue.ClaimNextIndexingProject(w.staleClaim)
		if err != nil {
			slog.Error("Failed to claim project", "error", err)
			return
		}
		if project == nil {
			return
		}

		slog.Info("Claimed project for indexing", "project_id", project.ID, "name", project.Name)

		if err := w.runner.Run(ctx, project); err != nil {
			// The runner records the error status itself
			slog.Error("Project indexing failed", "project_id", project.ID, "error", err)
			continue
		}

		slog.Info("Project indexing complete", "project_id", project.ID)
	}
}
