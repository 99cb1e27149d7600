package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	progressdomain "github.com/smallbiznis/goalforge/internal/progress/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() progressdomain.Repository {
	return &repo{}
}

func (r *repo) CompletionExists(ctx context.Context, db *gorm.DB, habitID snowflake.ID, day string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM completion_events WHERE habit_id = ? AND day = ?`,
		habitID,
		day,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) InsertCompletion(ctx context.Context, db *gorm.DB, e *progressdomain.CompletionEvent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO completion_events (id, habit_id, user_id, day, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.ID,
		e.HabitID,
		e.UserID,
		e.Day,
		e.RecordedAt,
	).Error
}

func (r *repo) MarkDayCompleted(ctx context.Context, db *gorm.DB, userID, day string, at time.Time) error {
	row := progressdomain.StreakSnapshot{
		UserID:         userID,
		Day:            day,
		Completed:      true,
		ItemsCompleted: 1,
		UpdatedAt:      at,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "day"}},
		DoUpdates: clause.Assignments(map[string]any{
			"completed":       true,
			"items_completed": gorm.Expr("streak_snapshots.items_completed + 1"),
			"updated_at":      at,
		}),
	}).Create(&row).Error
}

func (r *repo) SetStreakLength(ctx context.Context, db *gorm.DB, userID, day string, length int, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE streak_snapshots SET streak_length = ?, updated_at = ?
		 WHERE user_id = ? AND day = ?`,
		length,
		at,
		userID,
		day,
	).Error
}

func (r *repo) CompletedDays(ctx context.Context, db *gorm.DB, userID, onOrBefore string) ([]string, error) {
	var days []string
	err := db.WithContext(ctx).Raw(
		`SELECT day FROM streak_snapshots
		 WHERE user_id = ? AND completed = ? AND day <= ?
		 ORDER BY day DESC`,
		userID,
		true,
		onOrBefore,
	).Scan(&days).Error
	if err != nil {
		return nil, err
	}
	return days, nil
}

func (r *repo) FindSnapshot(ctx context.Context, db *gorm.DB, userID, day string) (*progressdomain.StreakSnapshot, error) {
	var snapshot progressdomain.StreakSnapshot
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, day, completed, items_completed, streak_length, updated_at
		 FROM streak_snapshots WHERE user_id = ? AND day = ?`,
		userID,
		day,
	).Scan(&snapshot).Error
	if err != nil {
		return nil, err
	}
	if snapshot.UserID == "" {
		return nil, nil
	}
	return &snapshot, nil
}

func (r *repo) ListSnapshots(ctx context.Context, db *gorm.DB, userID, fromDay, toDay string) ([]progressdomain.StreakSnapshot, error) {
	var snapshots []progressdomain.StreakSnapshot
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, day, completed, items_completed, streak_length, updated_at
		 FROM streak_snapshots
		 WHERE user_id = ? AND day >= ? AND day <= ?
		 ORDER BY day DESC`,
		userID,
		fromDay,
		toDay,
	).Scan(&snapshots).Error
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (r *repo) AddXP(ctx context.Context, db *gorm.DB, userID string, delta int64, streak int, at time.Time) error {
	row := progressdomain.UserProgress{
		UserID:        userID,
		XP:            delta,
		Level:         1,
		LongestStreak: streak,
		UpdatedAt:     at,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"xp": gorm.Expr("user_progress.xp + ?", delta),
			"longest_streak": gorm.Expr(
				"CASE WHEN user_progress.longest_streak < ? THEN ? ELSE user_progress.longest_streak END",
				streak, streak,
			),
			"updated_at": at,
		}),
	}).Create(&row).Error
}

func (r *repo) SetLevel(ctx context.Context, db *gorm.DB, userID string, level int) error {
	return db.WithContext(ctx).Exec(
		`UPDATE user_progress SET level = ? WHERE user_id = ?`,
		level,
		userID,
	).Error
}

func (r *repo) FindProgress(ctx context.Context, db *gorm.DB, userID string) (*progressdomain.UserProgress, error) {
	var progress progressdomain.UserProgress
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, xp, level, longest_streak, updated_at
		 FROM user_progress WHERE user_id = ?`,
		userID,
	).Scan(&progress).Error
	if err != nil {
		return nil, err
	}
	if progress.UserID == "" {
		return nil, nil
	}
	return &progress, nil
}

func (r *repo) TopByXP(ctx context.Context, db *gorm.DB, limit int) ([]progressdomain.UserProgress, error) {
	var rows []progressdomain.UserProgress
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, xp, level, longest_streak, updated_at
		 FROM user_progress
		 ORDER BY xp DESC, user_id ASC
		 LIMIT ?`,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) InsertAchievement(ctx context.Context, db *gorm.DB, a *progressdomain.Achievement) (bool, error) {
	res := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "type"}},
		DoNothing: true,
	}).Create(a)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListAchievements(ctx context.Context, db *gorm.DB, userID string) ([]progressdomain.Achievement, error) {
	var achievements []progressdomain.Achievement
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, type, title, earned_at
		 FROM achievements WHERE user_id = ?
		 ORDER BY earned_at ASC, id ASC`,
		userID,
	).Scan(&achievements).Error
	if err != nil {
		return nil, err
	}
	return achievements, nil
}
