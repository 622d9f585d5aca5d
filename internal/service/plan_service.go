package service

import (
	"context"
	"fmt"

	"routine-planner/internal/model"
	"routine-planner/internal/plan"
)

type ImportResult struct {
	Templates []model.TaskTemplate   `json:"templates"`
	Rules     []model.RecurrenceRule `json:"rules"`
}

// PlanService imports plan documents through RuleService, so imported rules go
// through the same validation and on-demand reconciliation as hand-made ones.
type PlanService struct {
	rules *RuleService
}

func NewPlanService(rules *RuleService) *PlanService {
	return &PlanService{rules: rules}
}

// Import checks every rule of the document, including the groups and templates
// it refers to, before writing anything. It then stores templates and rules in
// document order.
func (s *PlanService) Import(ctx context.Context, actor model.Actor, doc *plan.Document) (ImportResult, error) {
	if err := requireCoach(actor); err != nil {
		return ImportResult{}, err
	}

	contents := make(map[string]model.Content, len(doc.Templates))
	for _, t := range doc.Templates {
		c, err := t.Content()
		if err != nil {
			return ImportResult{}, err
		}
		if err := checkContent(c); err != nil {
			return ImportResult{}, fmt.Errorf("template %q: %w", t.Key, err)
		}
		contents[t.Key] = c
	}
	if err := s.check(ctx, doc, contents); err != nil {
		return ImportResult{}, err
	}

	var result ImportResult
	ids := make(map[string]string, len(doc.Templates))
	for _, t := range doc.Templates {
		tpl, err := s.rules.CreateTemplate(ctx, actor, &model.TaskTemplate{Content: contents[t.Key]})
		if err != nil {
			return result, fmt.Errorf("template %q: %w", t.Key, err)
		}
		ids[t.Key] = tpl.ID
		result.Templates = append(result.Templates, *tpl)
	}
	for i, r := range doc.Rules {
		var tplID *string
		if r.Template != "" {
			id := ids[r.Template]
			tplID = &id
		}
		rule, err := r.ToRule(tplID)
		if err != nil {
			return result, fmt.Errorf("rules[%d]: %w", i, err)
		}
		stored, err := s.rules.CreateRule(ctx, actor, &rule)
		if err != nil {
			return result, fmt.Errorf("rules[%d]: %w", i, err)
		}
		result.Rules = append(result.Rules, *stored)
	}
	return result, nil
}

func (s *PlanService) check(ctx context.Context, doc *plan.Document, contents map[string]model.Content) error {
	placeholder := "pending"
	for i, r := range doc.Rules {
		var tplID *string
		if r.Template != "" {
			if _, ok := contents[r.Template]; !ok {
				return fmt.Errorf("rules[%d]: %w", i,
					model.NewInvalidRuleError("template_id", "unknown template %q", r.Template))
			}
			tplID = &placeholder
		}
		rule, err := r.ToRule(tplID)
		if err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
		if rule.GroupID != nil && *rule.GroupID != "" {
			if err := s.rules.checkGroup(ctx, *rule.GroupID); err != nil {
				return fmt.Errorf("rules[%d]: %w", i, err)
			}
		}
	}
	return nil
}
