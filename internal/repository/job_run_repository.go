package repository

import (
	"context"

	"gorm.io/gorm"

	"routine-planner/internal/model"
)

// JobRunRepository keeps the audit trail of reconcile and sweep runs.
type JobRunRepository struct {
	db *gorm.DB
}

func NewJobRunRepository(db *gorm.DB) *JobRunRepository {
	return &JobRunRepository{db: db}
}

func (r *JobRunRepository) Record(ctx context.Context, run *model.JobRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return storeErr("record job run", "job run", "", err)
	}
	return nil
}

// Recent returns the latest runs of a job, newest first. An empty job lists all jobs.
func (r *JobRunRepository) Recent(ctx context.Context, job string, limit int) ([]model.JobRun, error) {
	if limit <= 0 {
		limit = 20
	}
	q := r.db.WithContext(ctx).Order("started_at DESC").Order("id DESC").Limit(limit)
	if job != "" {
		q = q.Where("job = ?", job)
	}
	var runs []model.JobRun
	if err := q.Find(&runs).Error; err != nil {
		return nil, storeErr("list job runs", "job run", "", err)
	}
	return runs, nil
}
