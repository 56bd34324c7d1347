package export

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/reelforge/reelforge-agent/internal/logging"
	"github.com/reelforge/reelforge-agent/internal/project"
)

// Runner polls for queued export jobs and drives them through the pipeline
// one at a time. Pause stops pickup of new jobs; a job already in flight
// runs to completion or cancellation.
type Runner struct {
	repo         project.Repository
	pipeline     *Pipeline
	logger       *slog.Logger
	pollInterval time.Duration
	running      atomic.Bool
	paused       atomic.Bool
}

func NewRunner(repo project.Repository, pipeline *Pipeline, logger *slog.Logger) *Runner {
	return &Runner{
		repo:         repo,
		pipeline:     pipeline,
		logger:       logger,
		pollInterval: 2 * time.Second,
	}
}

func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("export runner started")

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("export runner stopping")
			r.running.Store(false)
			return
		case <-ticker.C:
			if !r.paused.Load() {
				r.processNextJob(ctx)
			}
		}
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("export runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("export runner resumed")
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

func (r *Runner) processNextJob(ctx context.Context) {
	jobs, err := r.repo.ListQueuedJobs(ctx)
	if err != nil {
		r.logger.Error("failed to list queued jobs", "error", err)
		return
	}
	if len(jobs) == 0 {
		return
	}

	job := jobs[0]
	logging.WithJobID(r.logger, job.ID).Info("processing export job", "project_id", job.ProjectID)

	// Run owns status transitions from here; errors are already recorded
	// on the job row.
	r.pipeline.Run(ctx, job)
}
