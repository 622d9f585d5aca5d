package service

import (
	"context"
	"log/slog"
	"time"

	"routine-planner/internal/metrics"
	"routine-planner/internal/model"
	"routine-planner/internal/repository"
)

// JobResult is what the cron entrypoints report back to the caller.
type JobResult struct {
	Success         bool   `json:"success"`
	AffectedCount   int64  `json:"affectedCount"`
	ExecutionTimeMs int64  `json:"executionTimeMs"`
	Error           string `json:"error,omitempty"`
}

// JobRunner runs the reconcile and sweep jobs with a per-run timeout and keeps
// an audit row for each run. Runs are not resumable; a failed run is simply
// retried on the next trigger.
type JobRunner struct {
	reconciler *Reconciler
	sweeper    *Sweeper
	runs       *repository.JobRunRepository
	clock      Clock
	timeout    time.Duration
	metrics    *metrics.Metrics
	log        *slog.Logger
}

func NewJobRunner(
	reconciler *Reconciler,
	sweeper *Sweeper,
	runs *repository.JobRunRepository,
	clock Clock,
	timeout time.Duration,
	m *metrics.Metrics,
	log *slog.Logger,
) *JobRunner {
	if log == nil {
		log = slog.Default()
	}
	return &JobRunner{
		reconciler: reconciler,
		sweeper:    sweeper,
		runs:       runs,
		clock:      clock,
		timeout:    timeout,
		metrics:    m,
		log:        log,
	}
}

func (j *JobRunner) RunReconcile(ctx context.Context) JobResult {
	return j.run(ctx, model.JobReconcile, func(ctx context.Context, today model.Date) (int64, error) {
		report, err := j.reconciler.ReconcileAll(ctx, today)
		return report.Affected(), err
	})
}

func (j *JobRunner) RunSweep(ctx context.Context) JobResult {
	return j.run(ctx, model.JobSweep, func(ctx context.Context, today model.Date) (int64, error) {
		res, err := j.sweeper.Sweep(ctx, today)
		return res.AffectedCount, err
	})
}

// Recent lists the latest recorded runs of a job.
func (j *JobRunner) Recent(ctx context.Context, job string, limit int) ([]model.JobRun, error) {
	return j.runs.Recent(ctx, job, limit)
}

func (j *JobRunner) run(ctx context.Context, job string, fn func(context.Context, model.Date) (int64, error)) JobResult {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	startedAt := j.clock.Now()
	started := time.Now()
	affected, err := fn(ctx, j.clock.Today())
	elapsed := time.Since(started)

	result := JobResult{
		Success:         err == nil,
		AffectedCount:   affected,
		ExecutionTimeMs: elapsed.Milliseconds(),
	}
	run := &model.JobRun{
		Job:           job,
		StartedAt:     startedAt,
		FinishedAt:    startedAt.Add(elapsed),
		Success:       err == nil,
		AffectedCount: affected,
	}
	if err != nil {
		result.Error = err.Error()
		run.Error = err.Error()
		j.log.Error("job failed", "job", job, "elapsed", elapsed, "err", err)
	}
	j.metrics.ObserveJob(job, err == nil, elapsed)

	// The audit row is written on a fresh context so a timed-out run is still recorded.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if rerr := j.runs.Record(recordCtx, run); rerr != nil {
		j.log.Warn("record job run failed", "job", job, "err", rerr)
	}
	return result
}
