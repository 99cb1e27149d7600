package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, userID string, req CreateRequest) (*Response, error)
	List(ctx context.Context, userID string) ([]Response, error)
	Get(ctx context.Context, userID, id string) (*Response, error)
	Delete(ctx context.Context, userID, id string) error
}

type CreateRequest struct {
	Title    string         `json:"title"`
	Category string         `json:"category"`
	Metadata map[string]any `json:"metadata"`
}

type Response struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Category  string         `json:"category"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

const (
	DefaultCategory = "general"
	MaxTitleLength  = 200
)

var (
	ErrInvalidUser     = errors.New("invalid_user")
	ErrInvalidID       = errors.New("invalid_id")
	ErrInvalidTitle    = errors.New("invalid_title")
	ErrInvalidCategory = errors.New("invalid_category")
	ErrNotFound        = errors.New("not_found")
)

func ParseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(value)
	if err != nil || id <= 0 {
		return 0, ErrInvalidID
	}
	return id, nil
}
