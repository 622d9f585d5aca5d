package service

import (
	"context"
	"log/slog"
	"strings"

	"routine-planner/internal/model"
	"routine-planner/internal/repository"
)

// RuleService manages what coaches author: rules, templates and groups. Every
// change that affects materialization is followed by an on-demand reconcile of
// the rules involved, so instances show up without waiting for the nightly job.
type RuleService struct {
	rules      *repository.RuleRepository
	templates  *repository.TemplateRepository
	groups     *repository.GroupRepository
	reconciler *Reconciler
	clock      Clock
	log        *slog.Logger
}

func NewRuleService(
	rules *repository.RuleRepository,
	templates *repository.TemplateRepository,
	groups *repository.GroupRepository,
	reconciler *Reconciler,
	clock Clock,
	log *slog.Logger,
) *RuleService {
	if log == nil {
		log = slog.Default()
	}
	return &RuleService{
		rules:      rules,
		templates:  templates,
		groups:     groups,
		reconciler: reconciler,
		clock:      clock,
		log:        log,
	}
}

func requireCoach(actor model.Actor) error {
	if actor.Role != model.RoleCoach {
		return &model.ForbiddenError{ActorID: actor.ID, Reason: "coach role required"}
	}
	return nil
}

func requireOwner(actor model.Actor, ownerID string) error {
	if err := requireCoach(actor); err != nil {
		return err
	}
	if ownerID != actor.ID {
		return &model.ForbiddenError{ActorID: actor.ID, Reason: "owned by another coach"}
	}
	return nil
}

// CreateRule validates and stores a new active rule owned by actor, then
// materializes its first horizon.
func (s *RuleService) CreateRule(ctx context.Context, actor model.Actor, rule *model.RecurrenceRule) (*model.RecurrenceRule, error) {
	if err := requireCoach(actor); err != nil {
		return nil, err
	}
	rule.ID = ""
	rule.OwnerID = actor.ID
	rule.IsActive = true
	rule.Template = nil
	if err := s.checkRule(ctx, rule); err != nil {
		return nil, err
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, err
	}
	s.reconcile(ctx, rule.ID)
	return s.rules.Get(ctx, rule.ID)
}

// UpdateRule replaces the schedule and content of a rule. Identity, owner and
// activity are kept from the stored row.
func (s *RuleService) UpdateRule(ctx context.Context, actor model.Actor, id string, next model.RecurrenceRule) (*model.RecurrenceRule, error) {
	current, err := s.rules.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(actor, current.OwnerID); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.OwnerID = current.OwnerID
	next.IsActive = current.IsActive
	next.CreatedAt = current.CreatedAt
	next.Template = nil
	if err := s.checkRule(ctx, &next); err != nil {
		return nil, err
	}
	if err := s.rules.Save(ctx, &next); err != nil {
		return nil, err
	}
	s.reconcile(ctx, next.ID)
	return s.rules.Get(ctx, next.ID)
}

// DeactivateRule stops future materialization; existing instances are kept.
func (s *RuleService) DeactivateRule(ctx context.Context, actor model.Actor, id string) error {
	current, err := s.rules.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := requireOwner(actor, current.OwnerID); err != nil {
		return err
	}
	return s.rules.Deactivate(ctx, id, s.clock.Now())
}

func (s *RuleService) GetRule(ctx context.Context, actor model.Actor, id string) (*model.RecurrenceRule, error) {
	rule, err := s.rules.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == model.RoleCoach {
		return rule, nil
	}
	if rule.AssigneeID != nil && *rule.AssigneeID == actor.ID {
		return rule, nil
	}
	return nil, &model.ForbiddenError{ActorID: actor.ID, Reason: "rule targets another assignee"}
}

// ListRules returns a coach's own rules, or the active rules targeting a student.
func (s *RuleService) ListRules(ctx context.Context, actor model.Actor) ([]model.RecurrenceRule, error) {
	if actor.Role == model.RoleCoach {
		return s.rules.ListByOwner(ctx, actor.ID)
	}
	return s.rules.ListByAssignee(ctx, actor.ID)
}

// ListAllActive is for operators; it bypasses ownership.
func (s *RuleService) ListAllActive(ctx context.Context) ([]model.RecurrenceRule, error) {
	return s.rules.ListActive(ctx)
}

func (s *RuleService) checkRule(ctx context.Context, rule *model.RecurrenceRule) error {
	rule.Name = strings.TrimSpace(rule.Name)
	if rule.TemplateID != nil && *rule.TemplateID == "" {
		rule.TemplateID = nil
	}
	if rule.AssigneeID != nil && *rule.AssigneeID == "" {
		rule.AssigneeID = nil
	}
	if rule.GroupID != nil && *rule.GroupID == "" {
		rule.GroupID = nil
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.TemplateID != nil {
		if _, err := s.templates.Get(ctx, *rule.TemplateID); err != nil {
			if model.IsNotFound(err) {
				return model.NewInvalidRuleError("template_id", "template %s does not exist", *rule.TemplateID)
			}
			return err
		}
	}
	if rule.GroupID != nil {
		return s.checkGroup(ctx, *rule.GroupID)
	}
	return nil
}

func (s *RuleService) checkGroup(ctx context.Context, groupID string) error {
	if _, err := s.groups.Get(ctx, groupID); err != nil {
		if model.IsNotFound(err) {
			return model.NewInvalidRuleError("group_id", "group %s does not exist", groupID)
		}
		return err
	}
	return nil
}

// reconcile runs an on-demand pass for one rule. Failures are only logged: the
// rule is stored and the scheduled pass will catch up.
func (s *RuleService) reconcile(ctx context.Context, ruleIDs ...string) {
	today := s.clock.Today()
	for _, id := range ruleIDs {
		report, err := s.reconciler.ReconcileRule(ctx, id, today)
		if err != nil {
			s.log.Warn("on-demand reconcile failed", "rule_id", id, "err", err)
			continue
		}
		s.log.Debug("on-demand reconcile", "rule_id", id, "created", report.Created, "refreshed", report.Refreshed)
	}
}

func (s *RuleService) CreateTemplate(ctx context.Context, actor model.Actor, tpl *model.TaskTemplate) (*model.TaskTemplate, error) {
	if err := requireCoach(actor); err != nil {
		return nil, err
	}
	tpl.ID = ""
	tpl.OwnerID = actor.ID
	if err := checkContent(tpl.Content); err != nil {
		return nil, err
	}
	if err := s.templates.Create(ctx, tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

// UpdateTemplate edits a template and propagates the new content to every
// non-customized instance of the rules linked to it.
func (s *RuleService) UpdateTemplate(ctx context.Context, actor model.Actor, id string, content model.Content) (*model.TaskTemplate, error) {
	tpl, err := s.templates.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(actor, tpl.OwnerID); err != nil {
		return nil, err
	}
	content.Name = strings.TrimSpace(content.Name)
	if err := checkContent(content); err != nil {
		return nil, err
	}
	tpl.Content = content
	if err := s.templates.Save(ctx, tpl); err != nil {
		return nil, err
	}
	ids, err := s.rules.IDsUsingTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	s.reconcile(ctx, ids...)
	return tpl, nil
}

func (s *RuleService) ListTemplates(ctx context.Context, actor model.Actor) ([]model.TaskTemplate, error) {
	if err := requireCoach(actor); err != nil {
		return nil, err
	}
	return s.templates.ListByOwner(ctx, actor.ID)
}

func checkContent(c model.Content) error {
	if strings.TrimSpace(c.Name) == "" {
		return model.NewInvalidRuleError("name", "name is required")
	}
	if c.DurationMinutes < 0 {
		return model.NewInvalidRuleError("duration_minutes", "duration cannot be negative")
	}
	return nil
}

func (s *RuleService) CreateGroup(ctx context.Context, actor model.Actor, name string, members []string) (*model.Group, error) {
	if err := requireCoach(actor); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.NewInvalidRuleError("name", "group name is required")
	}
	group := &model.Group{OwnerID: actor.ID, Name: name}
	if err := s.groups.Create(ctx, group); err != nil {
		return nil, err
	}
	for _, userID := range members {
		if err := s.groups.AddMember(ctx, group.ID, userID); err != nil {
			return nil, err
		}
	}
	return s.groups.Get(ctx, group.ID)
}

// AddGroupMember adds a student and materializes the group's active rules for them.
func (s *RuleService) AddGroupMember(ctx context.Context, actor model.Actor, groupID, userID string) (*model.Group, error) {
	group, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(actor, group.OwnerID); err != nil {
		return nil, err
	}
	if err := s.groups.AddMember(ctx, groupID, userID); err != nil {
		return nil, err
	}
	ids, err := s.rules.IDsForGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	s.reconcile(ctx, ids...)
	return s.groups.Get(ctx, groupID)
}

// RemoveGroupMember stops future fan-out; already materialized instances stay.
func (s *RuleService) RemoveGroupMember(ctx context.Context, actor model.Actor, groupID, userID string) error {
	group, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if err := requireOwner(actor, group.OwnerID); err != nil {
		return err
	}
	return s.groups.RemoveMember(ctx, groupID, userID)
}
