package model

import "time"

// Role is what an actor is allowed to do.
type Role string

const (
	RoleCoach   Role = "coach"
	RoleStudent Role = "student"
)

func (r Role) Valid() bool {
	return r == RoleCoach || r == RoleStudent
}

// Actor is the identity attached to every API call by the identity provider.
type Actor struct {
	ID   string
	Role Role
}

// User stores profile data for an id issued by the identity provider.
type User struct {
	ID         string    `gorm:"primaryKey;size:64" json:"id"`
	Name       string    `json:"name"`
	Role       Role      `gorm:"size:16;not null;default:student" json:"role"`
	TelegramID *int64    `gorm:"uniqueIndex" json:"telegram_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (u User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role}
}
