package service

import (
	"context"
	"log/slog"
	"time"

	"routine-planner/internal/metrics"
	"routine-planner/internal/model"
	"routine-planner/internal/repository"
)

type SweepResult struct {
	AffectedCount int64         `json:"affected_count"`
	Elapsed       time.Duration `json:"elapsed"`
}

// Sweeper marks overdue pending instances as missed.
type Sweeper struct {
	instances *repository.InstanceRepository
	clock     Clock
	metrics   *metrics.Metrics
	log       *slog.Logger
}

func NewSweeper(instances *repository.InstanceRepository, clock Clock, m *metrics.Metrics, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{instances: instances, clock: clock, metrics: m, log: log}
}

// Sweep turns every pending instance dated before today into missed. It is a single
// statement, so it either applies completely or not at all, and re-running it
// on the same day affects nothing.
func (s *Sweeper) Sweep(ctx context.Context, today model.Date) (SweepResult, error) {
	started := time.Now()
	n, err := s.instances.SweepMissed(ctx, today, s.clock.Now())
	res := SweepResult{AffectedCount: n, Elapsed: time.Since(started)}
	if err != nil {
		s.log.Error("sweep failed", "today", today.String(), "err", err)
		return res, err
	}
	s.metrics.AddSwept(n)
	s.log.Info("sweep finished", "today", today.String(), "missed", n, "elapsed", res.Elapsed)
	return res, nil
}
