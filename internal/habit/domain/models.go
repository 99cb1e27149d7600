package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Habit is a tracked item a user logs daily completions against.
type Habit struct {
	ID        snowflake.ID      `json:"id" gorm:"primaryKey"`
	UserID    string            `json:"user_id" gorm:"type:varchar(191);not null;index:ix_habits_user"`
	Title     string            `json:"title" gorm:"type:text;not null"`
	Category  string            `json:"category" gorm:"type:text;not null;default:general"`
	Metadata  datatypes.JSONMap `json:"metadata"`
	CreatedAt time.Time         `json:"created_at" gorm:"not null"`
	DeletedAt *time.Time        `json:"deleted_at,omitempty"`
}

func (Habit) TableName() string { return "habits" }

func (h *Habit) Deleted() bool {
	return h != nil && h.DeletedAt != nil
}
