package repository

import (
	"context"

	"gorm.io/gorm"

	"routine-planner/internal/model"
)

// TemplateRepository handles CRUD for task templates.
type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) Create(ctx context.Context, tpl *model.TaskTemplate) error {
	if err := r.db.WithContext(ctx).Create(tpl).Error; err != nil {
		return storeErr("create template", "template", tpl.ID, err)
	}
	return nil
}

func (r *TemplateRepository) Save(ctx context.Context, tpl *model.TaskTemplate) error {
	if err := r.db.WithContext(ctx).Save(tpl).Error; err != nil {
		return storeErr("save template", "template", tpl.ID, err)
	}
	return nil
}

func (r *TemplateRepository) Get(ctx context.Context, id string) (*model.TaskTemplate, error) {
	var tpl model.TaskTemplate
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&tpl).Error; err != nil {
		return nil, storeErr("get template", "template", id, err)
	}
	return &tpl, nil
}

func (r *TemplateRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.TaskTemplate, error) {
	var out []model.TaskTemplate
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("name ASC").Find(&out).Error; err != nil {
		return nil, storeErr("list templates", "template", "", err)
	}
	return out, nil
}
