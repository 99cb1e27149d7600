package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	habitdomain "github.com/smallbiznis/goalforge/internal/habit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() habitdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, h *habitdomain.Habit) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO habits (id, user_id, title, category, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		h.ID,
		h.UserID,
		h.Title,
		h.Category,
		h.Metadata,
		h.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*habitdomain.Habit, error) {
	var habit habitdomain.Habit
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, title, category, metadata, created_at, deleted_at
		 FROM habits WHERE id = ?`,
		id,
	).Scan(&habit).Error
	if err != nil {
		return nil, err
	}
	if habit.ID == 0 {
		return nil, nil
	}
	return &habit, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID string) ([]habitdomain.Habit, error) {
	var habits []habitdomain.Habit
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, title, category, metadata, created_at, deleted_at
		 FROM habits WHERE user_id = ? AND deleted_at IS NULL
		 ORDER BY created_at ASC, id ASC`,
		userID,
	).Scan(&habits).Error
	if err != nil {
		return nil, err
	}
	return habits, nil
}

func (r *repo) SoftDelete(ctx context.Context, db *gorm.DB, userID string, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE habits SET deleted_at = ?
		 WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		at,
		id,
		userID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
