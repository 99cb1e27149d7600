package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type GoalType string

const (
	GoalHabitsCompleted GoalType = "habits_completed"
	GoalStreakDays      GoalType = "streak_days"
	GoalXP              GoalType = "xp"
)

func (g GoalType) Valid() bool {
	switch g {
	case GoalHabitsCompleted, GoalStreakDays, GoalXP:
		return true
	default:
		return false
	}
}

type Challenge struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	CreatorID   string       `json:"creator_id" gorm:"type:varchar(191);not null;index"`
	Title       string       `json:"title" gorm:"type:text;not null"`
	Slug        string       `json:"slug" gorm:"type:varchar(191);not null"`
	Description string       `json:"description" gorm:"type:text"`
	GoalType    GoalType     `json:"goal_type" gorm:"type:varchar(32);not null"`
	GoalTarget  int          `json:"goal_target" gorm:"not null"`
	StartDate   string       `json:"start_date" gorm:"type:varchar(10);not null"`
	EndDate     string       `json:"end_date" gorm:"type:varchar(10);not null"`
	Status      Status       `json:"status" gorm:"type:varchar(16);not null;default:active;index"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null"`
}

func (Challenge) TableName() string { return "challenges" }

// Participant ids are snowflakes, so ordering by id is join order.
type Participant struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	ChallengeID snowflake.ID `json:"challenge_id" gorm:"not null;uniqueIndex:ux_challenge_participants_member,priority:1"`
	UserID      string       `json:"user_id" gorm:"type:varchar(191);not null;uniqueIndex:ux_challenge_participants_member,priority:2;index"`
	Score       int64        `json:"score" gorm:"not null;default:0"`
	JoinedAt    time.Time    `json:"joined_at" gorm:"not null"`
}

func (Participant) TableName() string { return "challenge_participants" }

// Message ids are snowflakes and break created_at ties in insertion order.
type Message struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	ChallengeID snowflake.ID `json:"challenge_id" gorm:"not null;index:ix_challenge_messages_order,priority:1"`
	UserID      string       `json:"user_id" gorm:"type:varchar(191);not null"`
	Body        string       `json:"body" gorm:"type:text;not null"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null;index:ix_challenge_messages_order,priority:2"`
}

func (Message) TableName() string { return "challenge_messages" }
