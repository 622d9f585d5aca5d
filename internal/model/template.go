package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaskTemplate is reusable task content a rule can link to.
type TaskTemplate struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	OwnerID   string `gorm:"index;size:64;not null" json:"owner_id"`
	Content   `gorm:"embedded"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *TaskTemplate) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
