package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"routine-planner/internal/model"
)

// RuleRepository handles CRUD for recurrence rules. Rules are never hard-deleted:
// their instances are history.
type RuleRepository struct {
	db *gorm.DB
}

func NewRuleRepository(db *gorm.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

func (r *RuleRepository) Create(ctx context.Context, rule *model.RecurrenceRule) error {
	if err := r.db.WithContext(ctx).Omit("Template").Create(rule).Error; err != nil {
		return storeErr("create rule", "rule", rule.ID, err)
	}
	return nil
}

// Save writes every column of an existing rule.
func (r *RuleRepository) Save(ctx context.Context, rule *model.RecurrenceRule) error {
	if err := r.db.WithContext(ctx).Omit("Template").Save(rule).Error; err != nil {
		return storeErr("save rule", "rule", rule.ID, err)
	}
	return nil
}

// Get loads a rule with its template, if any.
func (r *RuleRepository) Get(ctx context.Context, id string) (*model.RecurrenceRule, error) {
	var rule model.RecurrenceRule
	if err := r.db.WithContext(ctx).Preload("Template").Where("id = ?", id).Take(&rule).Error; err != nil {
		return nil, storeErr("get rule", "rule", id, err)
	}
	return &rule, nil
}

// ListActive returns every active rule with its template, oldest first.
func (r *RuleRepository) ListActive(ctx context.Context) ([]model.RecurrenceRule, error) {
	var rules []model.RecurrenceRule
	if err := r.db.WithContext(ctx).Preload("Template").
		Where("is_active = ?", true).
		Order("created_at ASC").Order("id ASC").
		Find(&rules).Error; err != nil {
		return nil, storeErr("list active rules", "rule", "", err)
	}
	return rules, nil
}

// ListByOwner returns a coach's rules, including inactive ones.
func (r *RuleRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.RecurrenceRule, error) {
	var rules []model.RecurrenceRule
	if err := r.db.WithContext(ctx).Preload("Template").
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").Order("id ASC").
		Find(&rules).Error; err != nil {
		return nil, storeErr("list rules", "rule", "", err)
	}
	return rules, nil
}

// ListByAssignee returns the active rules that target one assignee directly.
func (r *RuleRepository) ListByAssignee(ctx context.Context, assigneeID string) ([]model.RecurrenceRule, error) {
	var rules []model.RecurrenceRule
	if err := r.db.WithContext(ctx).Preload("Template").
		Where("assignee_id = ? AND is_active = ?", assigneeID, true).
		Order("created_at ASC").
		Find(&rules).Error; err != nil {
		return nil, storeErr("list rules", "rule", "", err)
	}
	return rules, nil
}

// Deactivate stops a rule from materializing anything new. Existing instances stay.
func (r *RuleRepository) Deactivate(ctx context.Context, id string, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.RecurrenceRule{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_active": false, "updated_at": now})
	if res.Error != nil {
		return storeErr("deactivate rule", "rule", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return &model.NotFoundError{Kind: "rule", ID: id}
	}
	return nil
}

// IDsUsingTemplate lists active rules linked to a template, for re-reconciling after a template edit.
func (r *RuleRepository) IDsUsingTemplate(ctx context.Context, templateID string) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&model.RecurrenceRule{}).
		Where("template_id = ? AND is_active = ?", templateID, true).
		Order("created_at ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, storeErr("list rules by template", "rule", "", err)
	}
	return ids, nil
}

// IDsForGroup lists active rules targeting a group, for re-reconciling after membership changes.
func (r *RuleRepository) IDsForGroup(ctx context.Context, groupID string) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&model.RecurrenceRule{}).
		Where("group_id = ? AND is_active = ?", groupID, true).
		Order("created_at ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, storeErr("list rules by group", "rule", "", err)
	}
	return ids, nil
}
