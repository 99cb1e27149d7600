package notification

import (
	"context"
	"fmt"
	"strings"
)

const (
	KindAchievement = "achievement"
	KindChallenge   = "challenge"
)

type Notification struct {
	UserID string
	Kind   string
	Title  string
	Body   string
	Data   map[string]any
}

// Provider delivers a notification to a user out of band.
type Provider interface {
	Notify(ctx context.Context, n Notification) error
}

type NoOpProvider struct{}

func (NoOpProvider) Notify(context.Context, Notification) error {
	return nil
}

func validate(n Notification) error {
	if strings.TrimSpace(n.UserID) == "" {
		return fmt.Errorf("notification: user id is required")
	}
	if strings.TrimSpace(n.Kind) == "" {
		return fmt.Errorf("notification: kind is required")
	}
	return nil
}

// Achievement builds the notification sent when a streak milestone is reached.
func Achievement(userID, achievementType, title string, streak int) Notification {
	return Notification{
		UserID: userID,
		Kind:   KindAchievement,
		Title:  title,
		Body:   fmt.Sprintf("You kept your streak going for %d days.", streak),
		Data: map[string]any{
			"achievement_type": achievementType,
			"streak_length":    streak,
		},
	}
}
