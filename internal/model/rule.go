package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RecurrenceType describes how a rule repeats.
type RecurrenceType string

const (
	RecurrenceOnce           RecurrenceType = "once"
	RecurrenceDaily          RecurrenceType = "daily"
	RecurrenceWeekly         RecurrenceType = "weekly"
	RecurrenceCustomInterval RecurrenceType = "custom_interval"
)

func (t RecurrenceType) Valid() bool {
	switch t {
	case RecurrenceOnce, RecurrenceDaily, RecurrenceWeekly, RecurrenceCustomInterval:
		return true
	}
	return false
}

// Content is the part of a task that is copied into every instance.
type Content struct {
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	DurationMinutes int             `json:"duration_minutes"`
	ScheduledTime   *datatypes.Time `json:"scheduled_time,omitempty"`
}

// Equal compares content field by field, including the optional time of day.
func (c Content) Equal(o Content) bool {
	if c.Name != o.Name || c.Description != o.Description || c.DurationMinutes != o.DurationMinutes {
		return false
	}
	switch {
	case c.ScheduledTime == nil && o.ScheduledTime == nil:
		return true
	case c.ScheduledTime == nil || o.ScheduledTime == nil:
		return false
	default:
		return *c.ScheduledTime == *o.ScheduledTime
	}
}

// TimeOfDay renders the scheduled time as HH:MM, or "" when there is none.
func (c Content) TimeOfDay() string {
	if c.ScheduledTime == nil {
		return ""
	}
	d := time.Duration(*c.ScheduledTime)
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

// ParseTimeOfDay reads "HH:MM" or "HH:MM:SS"; an empty string means no time of day.
func ParseTimeOfDay(s string) (*datatypes.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	layout := "15:04"
	if strings.Count(s, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return nil, fmt.Errorf("time %q: expected HH:MM", s)
	}
	at := datatypes.NewTime(t.Hour(), t.Minute(), t.Second(), 0)
	return &at, nil
}

// RecurrenceRule is a coach-authored schedule that generates task instances.
type RecurrenceRule struct {
	ID             string                   `gorm:"primaryKey;size:36" json:"id"`
	OwnerID        string                   `gorm:"index;size:64;not null" json:"owner_id"`
	TemplateID     *string                  `gorm:"index;size:36" json:"template_id,omitempty"`
	Template       *TaskTemplate            `gorm:"foreignKey:TemplateID" json:"template,omitempty"`
	AssigneeID     *string                  `gorm:"index;size:64" json:"assignee_id,omitempty"`
	GroupID        *string                  `gorm:"index;size:36" json:"group_id,omitempty"`
	RecurrenceType RecurrenceType           `gorm:"size:20;not null" json:"recurrence_type"`
	DaysOfWeek     datatypes.JSONSlice[int] `json:"days_of_week,omitempty"`
	IntervalDays   int                      `json:"interval_days,omitempty"`
	StartDate      Date                     `gorm:"size:10;not null" json:"start_date"`
	EndDate        *Date                    `gorm:"size:10" json:"end_date,omitempty"`
	IsActive       bool                     `gorm:"index;not null" json:"is_active"`
	Content        `gorm:"embedded"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (r *RecurrenceRule) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Snapshot returns the content instances should carry: the linked template's when
// it is loaded, otherwise the rule's own inline content.
func (r RecurrenceRule) Snapshot() Content {
	if r.Template != nil {
		return r.Template.Content
	}
	return r.Content
}

// HasDay reports whether weekday is part of a weekly pattern.
func (r RecurrenceRule) HasDay(weekday time.Weekday) bool {
	for _, d := range r.DaysOfWeek {
		if d == int(weekday) {
			return true
		}
	}
	return false
}

// Validate checks the structural invariants of a rule before it is stored or expanded.
func (r RecurrenceRule) Validate() error {
	hasAssignee := r.AssigneeID != nil && strings.TrimSpace(*r.AssigneeID) != ""
	hasGroup := r.GroupID != nil && strings.TrimSpace(*r.GroupID) != ""
	switch {
	case hasAssignee && hasGroup:
		return NewInvalidRuleError("assignee_id", "assignee and group are mutually exclusive")
	case !hasAssignee && !hasGroup:
		return NewInvalidRuleError("assignee_id", "either an assignee or a group is required")
	}

	if !r.RecurrenceType.Valid() {
		return NewInvalidRuleError("recurrence_type", "unknown recurrence type %q", r.RecurrenceType)
	}
	if r.StartDate.IsZero() {
		return NewInvalidRuleError("start_date", "start date is required")
	}
	if r.EndDate != nil && !r.EndDate.IsZero() && r.EndDate.Before(r.StartDate) {
		return NewInvalidRuleError("end_date", "end date %s is before start date %s", r.EndDate, r.StartDate)
	}

	switch r.RecurrenceType {
	case RecurrenceWeekly:
		if len(r.DaysOfWeek) == 0 {
			return NewInvalidRuleError("days_of_week", "weekly rules need at least one day")
		}
		for _, d := range r.DaysOfWeek {
			if d < 0 || d > 6 {
				return NewInvalidRuleError("days_of_week", "day %d is outside 0..6", d)
			}
		}
	case RecurrenceCustomInterval:
		if r.IntervalDays <= 0 {
			return NewInvalidRuleError("interval_days", "custom interval must be a positive number of days")
		}
	}

	if r.TemplateID == nil && strings.TrimSpace(r.Name) == "" {
		return NewInvalidRuleError("name", "a name is required when no template is linked")
	}
	if r.DurationMinutes < 0 {
		return NewInvalidRuleError("duration_minutes", "duration cannot be negative")
	}
	return nil
}

// Targets returns the assignee ids the rule fans out to, given the members of its group.
func (r RecurrenceRule) Targets(members []string) []string {
	if r.AssigneeID != nil && *r.AssigneeID != "" {
		return []string{*r.AssigneeID}
	}
	return members
}
