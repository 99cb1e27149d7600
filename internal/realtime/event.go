package realtime

import (
	"errors"
	"strings"
	"time"
)

type EventType string

const (
	EventChannelHistory    EventType = "channel-history"
	EventNewMessage        EventType = "new-message"
	EventLeaderboardUpdate EventType = "leaderboard-update"
	EventProgressRecorded  EventType = "progress-recorded"
	EventTyping            EventType = "typing"
	EventError             EventType = "error"
)

// Event is one server-to-client frame.
type Event struct {
	Type      EventType `json:"type"`
	ChannelID string    `json:"channel_id,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

const (
	KindChallenge = "challenge"
	KindUser      = "user"
)

var (
	ErrSessionNotFound = errors.New("session_not_found")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidChannel  = errors.New("invalid_channel")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrHubClosed       = errors.New("hub_closed")
)

func ChallengeChannel(challengeID string) string {
	return KindChallenge + ":" + strings.TrimSpace(challengeID)
}

func UserChannel(userID string) string {
	return KindUser + ":" + strings.TrimSpace(userID)
}

// ParseChannel splits "kind:id". Only challenge and user channels exist.
func ParseChannel(channelID string) (kind string, id string, err error) {
	kind, id, ok := strings.Cut(strings.TrimSpace(channelID), ":")
	if !ok || id == "" {
		return "", "", ErrInvalidChannel
	}
	switch kind {
	case KindChallenge, KindUser:
		return kind, id, nil
	default:
		return "", "", ErrInvalidChannel
	}
}
