package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/goalforge/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, userID string, req CreateRequest) (*Response, error)
	List(ctx context.Context, userID string) ([]Response, error)
	Get(ctx context.Context, userID, id string) (*DetailResponse, error)
	Join(ctx context.Context, userID, id string) (*DetailResponse, error)
	Cancel(ctx context.Context, userID, id string) (*Response, error)

	UpdateScore(ctx context.Context, userID, id string, score int64) ([]LeaderboardEntry, error)
	Leaderboard(ctx context.Context, id string) ([]LeaderboardEntry, error)

	PostMessage(ctx context.Context, userID, id, body string) (*MessageResponse, error)
	ListMessages(ctx context.Context, userID, id string, page pagination.Pagination) (*MessagePage, error)
	// RecentMessages returns the latest messages oldest first, for a participant.
	RecentMessages(ctx context.Context, userID, id string) ([]MessageResponse, error)
	// OpenChat runs attach with the recent history while the challenge's chat is held still.
	OpenChat(ctx context.Context, userID, id string, attach func([]MessageResponse) error) error

	IsParticipant(ctx context.Context, id, userID string) (bool, error)
	ActiveChallengeIDs(ctx context.Context, userID string) ([]string, error)
	CompleteExpired(ctx context.Context) (int64, error)
}

type CreateRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	GoalType    GoalType `json:"goal_type"`
	GoalTarget  int      `json:"goal_target"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
}

type Response struct {
	ID          string    `json:"id"`
	CreatorID   string    `json:"creator_id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	GoalType    GoalType  `json:"goal_type"`
	GoalTarget  int       `json:"goal_target"`
	StartDate   string    `json:"start_date"`
	EndDate     string    `json:"end_date"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type DetailResponse struct {
	Response
	Participants []LeaderboardEntry `json:"participants"`
	Joined       bool               `json:"joined"`
}

type LeaderboardEntry struct {
	Rank     int       `json:"rank"`
	UserID   string    `json:"user_id"`
	Score    int64     `json:"score"`
	JoinedAt time.Time `json:"joined_at"`
}

// LeaderboardUpdate is published whenever the ordering may have changed.
type LeaderboardUpdate struct {
	ChallengeID string             `json:"challenge_id"`
	Entries     []LeaderboardEntry `json:"entries"`
}

type MessageResponse struct {
	ID          string    `json:"id"`
	ChallengeID string    `json:"challenge_id"`
	UserID      string    `json:"user_id"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

type MessagePage struct {
	Messages []MessageResponse   `json:"messages"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

// Governor gates chat messages per user.
type Governor interface {
	AllowMessage(ctx context.Context, userID string) error
}

const (
	MaxTitleLength       = 120
	MaxDescriptionLength = 2000
	MaxMessageLength     = 5000
	HistorySize          = 50
)

var (
	ErrInvalidUser      = errors.New("invalid_user")
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidTitle     = errors.New("invalid_title")
	ErrInvalidDesc      = errors.New("invalid_description")
	ErrInvalidGoal      = errors.New("invalid_goal")
	ErrInvalidDates     = errors.New("invalid_dates")
	ErrInvalidScore     = errors.New("invalid_score")
	ErrNotFound         = errors.New("not_found")
	ErrForbidden        = errors.New("forbidden")
	ErrAlreadyJoined    = errors.New("already_joined")
	ErrNotActive        = errors.New("challenge_not_active")
	ErrMessageEmpty     = errors.New("message_empty")
	ErrMessageTooLong   = errors.New("message_too_long")
	ErrStoreUnavailable = errors.New("store_unavailable")
)

func ParseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(value)
	if err != nil || id <= 0 {
		return 0, ErrInvalidID
	}
	return id, nil
}
