package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Status is the lifecycle state of a task instance.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusMissed    Status = "missed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusMissed:
		return true
	}
	return false
}

// CheckTransition validates a status change requested through the mutation API.
// Only the sweeper produces missed; a coach may still credit a missed task as
// completed, nobody may put it back to pending.
func CheckTransition(from, to Status, role Role) error {
	if !to.Valid() || to == StatusMissed {
		return &InvalidTransitionError{From: from, To: to, Role: role}
	}
	if from == StatusMissed {
		if to == StatusCompleted && role == RoleCoach {
			return nil
		}
		return &InvalidTransitionError{From: from, To: to, Role: role}
	}
	return nil
}

// TaskInstance is one dated occurrence of a task for a single assignee.
type TaskInstance struct {
	ID               string  `gorm:"primaryKey;size:36" json:"id"`
	RecurrenceRuleID *string `gorm:"size:36;uniqueIndex:idx_instance_occurrence,priority:1" json:"recurrence_rule_id,omitempty"`
	AssigneeID       string  `gorm:"size:64;not null;uniqueIndex:idx_instance_occurrence,priority:2;index:idx_instance_assignee_date,priority:1" json:"assignee_id"`
	Content          `gorm:"embedded"`
	ScheduledDate    Date       `gorm:"size:10;not null;uniqueIndex:idx_instance_occurrence,priority:3;index:idx_instance_status_date,priority:2;index:idx_instance_assignee_date,priority:2" json:"scheduled_date"`
	Status           Status     `gorm:"size:16;not null;default:pending;index:idx_instance_status_date,priority:1" json:"status"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	IsCustomized     bool       `gorm:"not null;default:false" json:"is_customized"`
	CoachNote        string     `json:"coach_note,omitempty"`
	StudentNote      string     `json:"student_note,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	UpdatedBy        string     `gorm:"size:64" json:"updated_by,omitempty"`
}

func (i *TaskInstance) BeforeCreate(*gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Status == "" {
		i.Status = StatusPending
	}
	return nil
}

// Overdue reports whether the instance is still pending on a past day.
func (i TaskInstance) Overdue(today Date) bool {
	return i.Status == StatusPending && i.ScheduledDate.Before(today)
}
