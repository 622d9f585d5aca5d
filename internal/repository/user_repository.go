package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"routine-planner/internal/model"
)

// UserRepository handles CRUD for users.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert creates the user or refreshes its name and role.
func (r *UserRepository) Upsert(ctx context.Context, user *model.User) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "role", "updated_at"}),
	}).Create(user).Error
	if err != nil {
		return storeErr("upsert user", "user", user.ID, err)
	}
	return nil
}

func (r *UserRepository) Get(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error; err != nil {
		return nil, storeErr("get user", "user", id, err)
	}
	return &user, nil
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).Take(&user).Error; err != nil {
		return nil, storeErr("find user", "telegram user", "", err)
	}
	return &user, nil
}

// LinkTelegram attaches a Telegram chat to an existing user.
func (r *UserRepository) LinkTelegram(ctx context.Context, id string, telegramID int64) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).
		Updates(map[string]any{"telegram_id": telegramID, "updated_at": time.Now()})
	if res.Error != nil {
		return storeErr("link telegram", "user", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return &model.NotFoundError{Kind: "user", ID: id}
	}
	return nil
}

// ListLinked returns users that can receive Telegram messages.
func (r *UserRepository) ListLinked(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Where("telegram_id IS NOT NULL").Order("id ASC").Find(&users).Error; err != nil {
		return nil, storeErr("list linked users", "user", "", err)
	}
	return users, nil
}
