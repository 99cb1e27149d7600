package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	SubmitCompletion(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
	CurrentStreak(ctx context.Context, userID string) (*StreakSummary, error)
	History(ctx context.Context, userID string, days int) ([]StreakSnapshot, error)
	Progress(ctx context.Context, userID string) (*ProgressResponse, error)
	Achievements(ctx context.Context, userID string) ([]Achievement, error)
	GlobalLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)
}

type SubmitRequest struct {
	UserID  string
	HabitID string
	// SubmittedAt is the client's clock. It is logged but never decides the day.
	SubmittedAt *time.Time
}

type SubmitResult struct {
	Success         bool          `json:"success"`
	HabitID         string        `json:"habit_id"`
	Date            string        `json:"date"`
	NewStreakLength int           `json:"new_streak_length"`
	XPDelta         int64         `json:"xp_delta"`
	XP              int64         `json:"xp"`
	Level           int           `json:"level"`
	Achievements    []Achievement `json:"achievements,omitempty"`
}

type StreakSummary struct {
	Current        int    `json:"current"`
	Longest        int    `json:"longest"`
	Today          string `json:"today"`
	CompletedToday bool   `json:"completed_today"`
}

type ProgressResponse struct {
	UserID        string `json:"user_id"`
	XP            int64  `json:"xp"`
	Level         int    `json:"level"`
	LongestStreak int    `json:"longest_streak"`
	NextLevelXP   int64  `json:"next_level_xp"`
}

type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	UserID        string `json:"user_id"`
	XP            int64  `json:"xp"`
	Level         int    `json:"level"`
	LongestStreak int    `json:"longest_streak"`
}

// ProgressRecorded is published after a completion commits.
type ProgressRecorded struct {
	UserID          string `json:"user_id"`
	HabitID         string `json:"habit_id"`
	Date            string `json:"date"`
	NewStreakLength int    `json:"new_streak_length"`
	XPDelta         int64  `json:"xp_delta"`
}

// ChallengeDirectory lists the active challenges a user takes part in.
type ChallengeDirectory interface {
	ActiveChallengeIDs(ctx context.Context, userID string) ([]string, error)
}

// Governor gates completion submissions per user.
type Governor interface {
	AllowCompletion(ctx context.Context, userID string) error
}

const (
	DefaultHistoryDays = 30
	MaxHistoryDays     = 365

	DefaultLeaderboardLimit = 50
	MaxLeaderboardLimit     = 100
)

var (
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidHabitID       = errors.New("invalid_habit_id")
	ErrInvalidDays          = errors.New("invalid_days")
	ErrNotOwner             = errors.New("not_owner")
	ErrNotFound             = errors.New("not_found")
	ErrAlreadyRecordedToday = errors.New("already_recorded_today")
	ErrStoreUnavailable     = errors.New("store_unavailable")
)
