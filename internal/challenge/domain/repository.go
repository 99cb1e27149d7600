package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertChallenge(ctx context.Context, db *gorm.DB, challenge *Challenge) error
	FindChallenge(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Challenge, error)
	ListForUser(ctx context.Context, db *gorm.DB, userID string) ([]Challenge, error)
	// TransitionStatus moves an active challenge to status. It reports false when
	// the challenge was no longer active.
	TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, at time.Time) (bool, error)
	// CompleteEnded marks active challenges whose end date is before today as completed.
	CompleteEnded(ctx context.Context, db *gorm.DB, today string, at time.Time) (int64, error)
	ActiveIDsForUser(ctx context.Context, db *gorm.DB, userID, today string) ([]snowflake.ID, error)

	InsertParticipant(ctx context.Context, db *gorm.DB, participant *Participant) error
	FindParticipant(ctx context.Context, db *gorm.DB, challengeID snowflake.ID, userID string) (*Participant, error)
	// ListParticipants orders by score desc, then join order.
	ListParticipants(ctx context.Context, db *gorm.DB, challengeID snowflake.ID) ([]Participant, error)
	UpdateScore(ctx context.Context, db *gorm.DB, challengeID snowflake.ID, userID string, score int64) error

	InsertMessage(ctx context.Context, db *gorm.DB, message *Message) error
	// ListMessages returns newest first by id, strictly older than before when set.
	ListMessages(ctx context.Context, db *gorm.DB, challengeID snowflake.ID, before *snowflake.ID, limit int) ([]Message, error)
}
