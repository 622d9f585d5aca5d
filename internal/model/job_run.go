package model

import "time"

// Job names recorded in job_runs.
const (
	JobReconcile = "reconcile"
	JobSweep     = "sweep"
)

// JobRun is the audit row written for every reconcile or sweep run.
type JobRun struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Job           string    `gorm:"size:32;index;not null" json:"job"`
	StartedAt     time.Time `gorm:"index" json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Success       bool      `json:"success"`
	AffectedCount int64     `json:"affected_count"`
	Error         string    `json:"error,omitempty"`
}

func (r JobRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
