package service

import (
	"context"
	"log/slog"
	"strings"

	"gorm.io/datatypes"

	"routine-planner/internal/metrics"
	"routine-planner/internal/model"
	"routine-planner/internal/repository"
)

const (
	DefaultUpcomingDays = 7
	MaxUpcomingDays     = 60
)

// ContentPatch edits single fields of one instance. Nil fields are left as they are.
type ContentPatch struct {
	Name            *string
	Description     *string
	DurationMinutes *int
	ScheduledTime   *datatypes.Time
	ClearTime       bool
}

func (p ContentPatch) apply(c model.Content) model.Content {
	if p.Name != nil {
		c.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.DurationMinutes != nil {
		c.DurationMinutes = *p.DurationMinutes
	}
	switch {
	case p.ClearTime:
		c.ScheduledTime = nil
	case p.ScheduledTime != nil:
		t := *p.ScheduledTime
		c.ScheduledTime = &t
	}
	return c
}

// NewInstance describes a manual, one-off instance created by a coach.
type NewInstance struct {
	AssigneeID    string     `json:"assignee_id" validate:"required"`
	ScheduledDate model.Date `json:"scheduled_date"`
	model.Content
}

// CompletionStats is the completion rate over resolved instances
// (completed + missed) of one assignee in a date range.
type CompletionStats struct {
	AssigneeID string     `json:"assignee_id"`
	From       model.Date `json:"from"`
	To         model.Date `json:"to"`
	repository.StatusCounts
	CompletionRate float64 `json:"completion_rate"`
}

// InstanceService is the query and mutation facade used by the HTTP API and the bot.
// Students only see and touch their own instances; coaches may act on anyone's.
type InstanceService struct {
	instances *repository.InstanceRepository
	clock     Clock
	metrics   *metrics.Metrics
	log       *slog.Logger
}

func NewInstanceService(instances *repository.InstanceRepository, clock Clock, m *metrics.Metrics, log *slog.Logger) *InstanceService {
	if log == nil {
		log = slog.Default()
	}
	return &InstanceService{instances: instances, clock: clock, metrics: m, log: log}
}

func (s *InstanceService) Today() model.Date {
	return s.clock.Today()
}

// resolveAssignee defaults the assignee to the actor and rejects students asking
// for somebody else.
func resolveAssignee(actor model.Actor, assigneeID string) (string, error) {
	if assigneeID == "" {
		assigneeID = actor.ID
	}
	if actor.Role != model.RoleCoach && assigneeID != actor.ID {
		return "", &model.ForbiddenError{ActorID: actor.ID, Reason: "students can only access their own instances"}
	}
	return assigneeID, nil
}

func (s *InstanceService) ListToday(ctx context.Context, actor model.Actor, assigneeID string) ([]model.TaskInstance, error) {
	assigneeID, err := resolveAssignee(actor, assigneeID)
	if err != nil {
		return nil, err
	}
	today := s.clock.Today()
	return s.instances.List(ctx, repository.InstanceFilter{AssigneeID: assigneeID, From: &today, To: &today})
}

// ListUpcoming returns instances from tomorrow through today+days.
func (s *InstanceService) ListUpcoming(ctx context.Context, actor model.Actor, assigneeID string, days int) ([]model.TaskInstance, error) {
	assigneeID, err := resolveAssignee(actor, assigneeID)
	if err != nil {
		return nil, err
	}
	switch {
	case days <= 0:
		days = DefaultUpcomingDays
	case days > MaxUpcomingDays:
		days = MaxUpcomingDays
	}
	today := s.clock.Today()
	from, to := today.AddDays(1), today.AddDays(days)
	return s.instances.List(ctx, repository.InstanceFilter{AssigneeID: assigneeID, From: &from, To: &to})
}

// ListOverdue returns pending instances dated before today, i.e. those the next
// sweep will mark missed.
func (s *InstanceService) ListOverdue(ctx context.Context, actor model.Actor, assigneeID string) ([]model.TaskInstance, error) {
	assigneeID, err := resolveAssignee(actor, assigneeID)
	if err != nil {
		return nil, err
	}
	to := s.clock.Today().AddDays(-1)
	return s.instances.List(ctx, repository.InstanceFilter{AssigneeID: assigneeID, To: &to, Status: model.StatusPending})
}

func (s *InstanceService) List(ctx context.Context, actor model.Actor, f repository.InstanceFilter) ([]model.TaskInstance, error) {
	if actor.Role != model.RoleCoach {
		assigneeID, err := resolveAssignee(actor, f.AssigneeID)
		if err != nil {
			return nil, err
		}
		f.AssigneeID = assigneeID
	}
	return s.instances.List(ctx, f)
}

func (s *InstanceService) Get(ctx context.Context, actor model.Actor, id string) (*model.TaskInstance, error) {
	inst, err := s.instances.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canTouch(actor, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func canTouch(actor model.Actor, inst *model.TaskInstance) error {
	if actor.Role == model.RoleCoach || inst.AssigneeID == actor.ID {
		return nil
	}
	return &model.ForbiddenError{ActorID: actor.ID, Reason: "instance belongs to another assignee"}
}

// SetStatus changes the status of an instance. Missed can never be requested here.
func (s *InstanceService) SetStatus(ctx context.Context, actor model.Actor, id string, status model.Status) (*model.TaskInstance, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	inst, err := s.instances.SetStatus(ctx, id, status, actor, s.clock.Now())
	if err != nil {
		if model.IsInvalidTransition(err) {
			s.log.Warn("rejected status change", "instance_id", id, "actor_id", actor.ID, "err", err)
		}
		return nil, err
	}
	s.metrics.StatusChanged(string(status))
	return inst, nil
}

// ToggleComplete flips between pending and completed.
func (s *InstanceService) ToggleComplete(ctx context.Context, actor model.Actor, id string, completed bool) (*model.TaskInstance, error) {
	status := model.StatusPending
	if completed {
		status = model.StatusCompleted
	}
	return s.SetStatus(ctx, actor, id, status)
}

// AddCoachNote is reserved to coaches.
func (s *InstanceService) AddCoachNote(ctx context.Context, actor model.Actor, id, content string) (*model.TaskInstance, error) {
	if actor.Role != model.RoleCoach {
		return nil, &model.ForbiddenError{ActorID: actor.ID, Reason: "only coaches write coach notes"}
	}
	if _, err := s.instances.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.instances.AttachNote(ctx, id, model.RoleCoach, content, actor, s.clock.Now())
}

// AddStudentNote is reserved to the assignee.
func (s *InstanceService) AddStudentNote(ctx context.Context, actor model.Actor, id, content string) (*model.TaskInstance, error) {
	inst, err := s.instances.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.AssigneeID != actor.ID {
		return nil, &model.ForbiddenError{ActorID: actor.ID, Reason: "only the assignee writes the student note"}
	}
	return s.instances.AttachNote(ctx, id, model.RoleStudent, content, actor, s.clock.Now())
}

// AddNote writes the note slot that belongs to the actor's role.
func (s *InstanceService) AddNote(ctx context.Context, actor model.Actor, id, content string) (*model.TaskInstance, error) {
	if actor.Role == model.RoleCoach {
		return s.AddCoachNote(ctx, actor, id, content)
	}
	return s.AddStudentNote(ctx, actor, id, content)
}

// Customize edits one instance; reconciliation will not overwrite it afterwards.
func (s *InstanceService) Customize(ctx context.Context, actor model.Actor, id string, patch ContentPatch) (*model.TaskInstance, error) {
	inst, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	content := patch.apply(inst.Content)
	if content.Name == "" {
		return nil, model.NewInvalidRuleError("name", "name cannot be empty")
	}
	if content.DurationMinutes < 0 {
		return nil, model.NewInvalidRuleError("duration_minutes", "duration cannot be negative")
	}
	return s.instances.Customize(ctx, id, content, actor, s.clock.Now())
}

// CreateManual adds a one-off instance that no rule generated.
func (s *InstanceService) CreateManual(ctx context.Context, actor model.Actor, in NewInstance) (*model.TaskInstance, error) {
	if actor.Role != model.RoleCoach {
		return nil, &model.ForbiddenError{ActorID: actor.ID, Reason: "only coaches create instances"}
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, model.NewInvalidRuleError("name", "name is required")
	}
	date := in.ScheduledDate
	if date.IsZero() {
		date = s.clock.Today()
	}
	inst := &model.TaskInstance{
		AssigneeID:    in.AssigneeID,
		ScheduledDate: date,
		Content:       in.Content,
		Status:        model.StatusPending,
		UpdatedBy:     actor.ID,
	}
	inst.Name = strings.TrimSpace(inst.Name)
	if err := s.instances.Create(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// CompletionStats defaults to the last 30 days ending today.
func (s *InstanceService) CompletionStats(ctx context.Context, actor model.Actor, assigneeID string, from, to model.Date) (CompletionStats, error) {
	assigneeID, err := resolveAssignee(actor, assigneeID)
	if err != nil {
		return CompletionStats{}, err
	}
	if to.IsZero() {
		to = s.clock.Today()
	}
	if from.IsZero() {
		from = to.AddDays(-29)
	}
	counts, err := s.instances.CountByStatus(ctx, repository.InstanceFilter{AssigneeID: assigneeID, From: &from, To: &to})
	if err != nil {
		return CompletionStats{}, err
	}
	stats := CompletionStats{AssigneeID: assigneeID, From: from, To: to, StatusCounts: counts}
	if resolved := counts.Completed + counts.Missed; resolved > 0 {
		stats.CompletionRate = float64(counts.Completed) / float64(resolved)
	}
	return stats, nil
}
