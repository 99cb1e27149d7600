package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// CompletionEvent is one recorded completion of a habit on a calendar day.
type CompletionEvent struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	HabitID    snowflake.ID `json:"habit_id" gorm:"not null;uniqueIndex:ux_completion_events_habit_day,priority:1"`
	UserID     string       `json:"user_id" gorm:"type:varchar(191);not null;index:ix_completion_events_user_day,priority:1"`
	Day        string       `json:"day" gorm:"type:varchar(10);not null;uniqueIndex:ux_completion_events_habit_day,priority:2;index:ix_completion_events_user_day,priority:2"`
	RecordedAt time.Time    `json:"recorded_at" gorm:"not null"`
}

func (CompletionEvent) TableName() string { return "completion_events" }

// StreakSnapshot is the persisted streak state of a user as of one calendar day.
type StreakSnapshot struct {
	UserID         string    `json:"user_id" gorm:"type:varchar(191);primaryKey"`
	Day            string    `json:"day" gorm:"type:varchar(10);primaryKey"`
	Completed      bool      `json:"completed" gorm:"not null;default:false"`
	ItemsCompleted int       `json:"items_completed" gorm:"not null;default:0"`
	StreakLength   int       `json:"streak_length" gorm:"not null;default:0"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"not null"`
}

func (StreakSnapshot) TableName() string { return "streak_snapshots" }

// UserProgress holds accumulated experience for a user.
type UserProgress struct {
	UserID        string    `json:"user_id" gorm:"type:varchar(191);primaryKey"`
	XP            int64     `json:"xp" gorm:"not null;default:0"`
	Level         int       `json:"level" gorm:"not null;default:1"`
	LongestStreak int       `json:"longest_streak" gorm:"not null;default:0"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"not null"`
}

func (UserProgress) TableName() string { return "user_progress" }

type Achievement struct {
	ID       snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID   string       `json:"user_id" gorm:"type:varchar(191);not null;uniqueIndex:ux_achievements_user_type,priority:1"`
	Type     string       `json:"type" gorm:"type:varchar(64);not null;uniqueIndex:ux_achievements_user_type,priority:2"`
	Title    string       `json:"title" gorm:"type:text;not null"`
	EarnedAt time.Time    `json:"earned_at" gorm:"not null"`
}

func (Achievement) TableName() string { return "achievements" }
