package realtime

import "context"

// Publisher hands events to the channel's ordered dispatcher.
type Publisher interface {
	Publish(channelID string, evt Event)
}

// Router fans events out to subscribed live sessions.
type Router interface {
	Publisher
	PublishTo(channelID, sessionID string, evt Event)
	Subscribe(ctx context.Context, sessionID, channelID string) error
	Unsubscribe(sessionID, channelID string)
}

// Registry owns the lifecycle of live sessions.
type Registry interface {
	Register(ctx context.Context, token string) (*Session, error)
	Deregister(sessionID string)
	Session(sessionID string) (*Session, bool)
	Count() int
}

// Authorizer decides, on every call, whether a user may subscribe to a channel.
type Authorizer interface {
	CanSubscribe(ctx context.Context, userID, channelID string) error
}

// UserChannelAuthorizer admits a user to their own user channel and
// delegates challenge channels to next.
type UserChannelAuthorizer struct {
	Next Authorizer
}

func (a UserChannelAuthorizer) CanSubscribe(ctx context.Context, userID, channelID string) error {
	kind, id, err := ParseChannel(channelID)
	if err != nil {
		return err
	}
	if kind == KindUser {
		if id != userID {
			return ErrForbidden
		}
		return nil
	}
	if a.Next == nil {
		return ErrForbidden
	}
	return a.Next.CanSubscribe(ctx, userID, channelID)
}
