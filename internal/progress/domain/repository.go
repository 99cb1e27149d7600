package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	CompletionExists(ctx context.Context, db *gorm.DB, habitID snowflake.ID, day string) (bool, error)
	InsertCompletion(ctx context.Context, db *gorm.DB, event *CompletionEvent) error

	// MarkDayCompleted creates or bumps the snapshot row for the day.
	MarkDayCompleted(ctx context.Context, db *gorm.DB, userID, day string, at time.Time) error
	SetStreakLength(ctx context.Context, db *gorm.DB, userID, day string, length int, at time.Time) error
	// CompletedDays lists days with activity on or before the given day, most recent first.
	CompletedDays(ctx context.Context, db *gorm.DB, userID, onOrBefore string) ([]string, error)
	FindSnapshot(ctx context.Context, db *gorm.DB, userID, day string) (*StreakSnapshot, error)
	ListSnapshots(ctx context.Context, db *gorm.DB, userID, fromDay, toDay string) ([]StreakSnapshot, error)

	// AddXP adds delta to the user's xp and raises longest_streak if needed.
	AddXP(ctx context.Context, db *gorm.DB, userID string, delta int64, streak int, at time.Time) error
	SetLevel(ctx context.Context, db *gorm.DB, userID string, level int) error
	FindProgress(ctx context.Context, db *gorm.DB, userID string) (*UserProgress, error)
	TopByXP(ctx context.Context, db *gorm.DB, limit int) ([]UserProgress, error)

	// InsertAchievement reports false when the user already holds that type.
	InsertAchievement(ctx context.Context, db *gorm.DB, achievement *Achievement) (bool, error)
	ListAchievements(ctx context.Context, db *gorm.DB, userID string) ([]Achievement, error)
}
