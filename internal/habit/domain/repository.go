package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, habit *Habit) error
	// FindByID returns soft-deleted rows too; callers decide visibility.
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Habit, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID string) ([]Habit, error)
	SoftDelete(ctx context.Context, db *gorm.DB, userID string, id snowflake.ID, at time.Time) (bool, error)
}
