package service

import (
	"context"

	challengedomain "github.com/smallbiznis/goalforge/internal/challenge/domain"
	"github.com/smallbiznis/goalforge/internal/realtime"
	"gorm.io/gorm"
)

// ChannelAuthorizer admits participants to their challenge channels. The
// membership row is read on every call.
type ChannelAuthorizer struct {
	db   *gorm.DB
	repo challengedomain.Repository
}

func NewChannelAuthorizer(db *gorm.DB, repo challengedomain.Repository) realtime.Authorizer {
	return &ChannelAuthorizer{db: db, repo: repo}
}

func (a *ChannelAuthorizer) CanSubscribe(ctx context.Context, userID, channelID string) error {
	kind, id, err := realtime.ParseChannel(channelID)
	if err != nil {
		return err
	}
	if kind != realtime.KindChallenge {
		return realtime.ErrForbidden
	}
	challengeID, err := challengedomain.ParseID(id)
	if err != nil {
		return realtime.ErrInvalidChannel
	}

	participant, err := a.repo.FindParticipant(ctx, a.db, challengeID, userID)
	if err != nil {
		return err
	}
	if participant == nil {
		return realtime.ErrForbidden
	}
	return nil
}
