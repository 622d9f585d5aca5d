package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Group is a coach-owned set of students a rule can target as a whole.
type Group struct {
	ID        string        `gorm:"primaryKey;size:36" json:"id"`
	OwnerID   string        `gorm:"index;size:64;not null" json:"owner_id"`
	Name      string        `gorm:"size:120;not null" json:"name"`
	Members   []GroupMember `gorm:"foreignKey:GroupID" json:"members,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (g *Group) BeforeCreate(*gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}

// GroupMember links a user to a group.
type GroupMember struct {
	GroupID   string    `gorm:"primaryKey;size:36" json:"group_id"`
	UserID    string    `gorm:"primaryKey;size:64" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
