package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"routine-planner/internal/model"
)

// GroupRepository manages student groups and their membership.
type GroupRepository struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

func (r *GroupRepository) Create(ctx context.Context, group *model.Group) error {
	if err := r.db.WithContext(ctx).Omit("Members").Create(group).Error; err != nil {
		return storeErr("create group", "group", group.ID, err)
	}
	return nil
}

func (r *GroupRepository) Get(ctx context.Context, id string) (*model.Group, error) {
	var group model.Group
	if err := r.db.WithContext(ctx).Preload("Members").Where("id = ?", id).Take(&group).Error; err != nil {
		return nil, storeErr("get group", "group", id, err)
	}
	return &group, nil
}

// AddMember is idempotent: adding an existing member is a no-op.
func (r *GroupRepository) AddMember(ctx context.Context, groupID, userID string) error {
	member := model.GroupMember{GroupID: groupID, UserID: userID}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error; err != nil {
		return storeErr("add group member", "group", groupID, err)
	}
	return nil
}

func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, userID string) error {
	if err := r.db.WithContext(ctx).Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&model.GroupMember{}).Error; err != nil {
		return storeErr("remove group member", "group", groupID, err)
	}
	return nil
}

// Members returns the user ids of a group in a stable order.
func (r *GroupRepository) Members(ctx context.Context, groupID string) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&model.GroupMember{}).
		Where("group_id = ?", groupID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, storeErr("list group members", "group", groupID, err)
	}
	return ids, nil
}
