package realtime

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	authdomain "github.com/smallbiznis/goalforge/internal/auth/domain"
	"github.com/smallbiznis/goalforge/internal/clock"
	"github.com/smallbiznis/goalforge/internal/config"
	"github.com/smallbiznis/goalforge/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const DefaultSessionBuffer = 64

type Params struct {
	fx.In

	Lifecycle  fx.Lifecycle `optional:"true"`
	Config     config.Config
	Log        *zap.Logger
	Clock      clock.Clock
	Auth       authdomain.Provider
	Authorizer Authorizer
	Metrics    *metrics.Metrics `optional:"true"`
}

// Hub is both the session registry and the channel fan-out router.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	channels map[string]*channel
	closed   bool

	auth       authdomain.Provider
	authorizer Authorizer
	clock      clock.Clock
	log        *zap.Logger
	metrics    *metrics.Metrics
	buffer     int
}

type channel struct {
	id string

	// guarded by Hub.mu
	subs map[string]*Session

	qmu     sync.Mutex
	queue   []dispatch
	running bool
}

// dispatch carries the recipients captured at publish time.
type dispatch struct {
	evt     Event
	targets []*Session
}

func New(p Params) *Hub {
	h := NewHub(p.Auth, p.Authorizer, p.Clock, p.Log, p.Metrics, p.Config.Live.SessionBuffer)
	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(context.Context) error {
				h.Close()
				return nil
			},
		})
	}
	return h
}

func NewHub(auth authdomain.Provider, authorizer Authorizer, c clock.Clock, log *zap.Logger, m *metrics.Metrics, buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultSessionBuffer
	}
	if log == nil {
		log = zap.NewNop()
	}
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Hub{
		sessions:   make(map[string]*Session),
		channels:   make(map[string]*channel),
		auth:       auth,
		authorizer: UserChannelAuthorizer{Next: authorizer},
		clock:      c,
		log:        log.Named("realtime.hub"),
		metrics:    m,
		buffer:     buffer,
	}
}

// Register authenticates the token and creates a session subscribed to its
// own user channel. Any authentication failure rejects the connection.
func (h *Hub) Register(ctx context.Context, token string) (*Session, error) {
	if h.auth == nil {
		return nil, ErrUnauthenticated
	}
	userID, err := h.auth.Validate(ctx, strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	now := h.clock.Now()
	sess := newSession(ulid.Make().String(), userID, h.buffer, now)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	h.sessions[sess.ID] = sess
	h.attachLocked(sess, UserChannel(userID))
	h.mu.Unlock()

	h.metrics.AddLiveSessions(ctx, 1)
	h.log.Debug("session registered",
		zap.String("session_id", sess.ID),
		zap.String("user_id", userID),
	)
	return sess, nil
}

// Deregister removes the session from every channel and closes its stream.
// Calling it twice is a no-op.
func (h *Hub) Deregister(sessionID string) {
	h.mu.Lock()
	sess := h.sessions[sessionID]
	if sess == nil {
		h.mu.Unlock()
		return
	}
	for channelID := range sess.channels {
		h.detachLocked(sess, channelID)
	}
	delete(h.sessions, sessionID)
	h.mu.Unlock()

	sess.close()
	h.metrics.AddLiveSessions(context.Background(), -1)
	h.log.Debug("session deregistered",
		zap.String("session_id", sess.ID),
		zap.String("user_id", sess.UserID),
	)
}

func (h *Hub) Session(sessionID string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sess, ok := h.sessions[sessionID]
	return sess, ok
}

// Subscribe re-checks authorization on every call; membership may have
// changed since the session connected.
func (h *Hub) Subscribe(ctx context.Context, sessionID, channelID string) error {
	channelID = strings.TrimSpace(channelID)
	if _, _, err := ParseChannel(channelID); err != nil {
		return err
	}
	sess, ok := h.Session(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	if err := h.authorizer.CanSubscribe(ctx, sess.UserID, channelID); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[sessionID] != sess {
		return ErrSessionNotFound
	}
	h.attachLocked(sess, channelID)
	return nil
}

func (h *Hub) Unsubscribe(sessionID, channelID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sess := h.sessions[sessionID]
	if sess == nil {
		return
	}
	h.detachLocked(sess, strings.TrimSpace(channelID))
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Subscribers returns the number of sessions currently on the channel.
func (h *Hub) Subscribers(channelID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if ch := h.channels[channelID]; ch != nil {
		return len(ch.subs)
	}
	return 0
}

// Publish never blocks on delivery. Events on one channel reach every
// subscriber in publish order.
func (h *Hub) Publish(channelID string, evt Event) {
	h.enqueue(channelID, "", evt)
}

// PublishTo queues an event for a single subscriber behind anything already
// queued on the channel.
func (h *Hub) PublishTo(channelID, sessionID string, evt Event) {
	if strings.TrimSpace(sessionID) == "" {
		return
	}
	h.enqueue(channelID, sessionID, evt)
}

func (h *Hub) enqueue(channelID, sessionID string, evt Event) {
	if h == nil {
		return
	}
	channelID = strings.TrimSpace(channelID)
	if evt.ChannelID == "" {
		evt.ChannelID = channelID
	}
	if evt.SentAt.IsZero() {
		evt.SentAt = h.clock.Now().UTC()
	}

	h.mu.RLock()
	ch := h.channels[channelID]
	if ch == nil || len(ch.subs) == 0 {
		h.mu.RUnlock()
		return
	}
	var targets []*Session
	if sessionID != "" {
		if sess := ch.subs[sessionID]; sess != nil {
			targets = []*Session{sess}
		}
	} else {
		targets = make([]*Session, 0, len(ch.subs))
		for _, sess := range ch.subs {
			targets = append(targets, sess)
		}
	}
	// queued under the read lock so two publishes cannot reorder
	// between taking the snapshot and entering the queue.
	if len(targets) > 0 {
		ch.qmu.Lock()
		ch.queue = append(ch.queue, dispatch{evt: evt, targets: targets})
		start := !ch.running
		ch.running = true
		ch.qmu.Unlock()
		if start {
			go h.drain(ch)
		}
	}
	h.mu.RUnlock()
}

func (h *Hub) drain(ch *channel) {
	for {
		ch.qmu.Lock()
		if len(ch.queue) == 0 {
			ch.running = false
			ch.qmu.Unlock()
			return
		}
		next := ch.queue[0]
		ch.queue[0] = dispatch{}
		ch.queue = ch.queue[1:]
		ch.qmu.Unlock()

		h.deliver(ch, next)
	}
}

func (h *Hub) deliver(ch *channel, d dispatch) {
	// drop recipients that left the channel after the event was queued.
	h.mu.RLock()
	live := d.targets[:0:0]
	for _, sess := range d.targets {
		if ch.subs[sess.ID] == sess {
			live = append(live, sess)
		}
	}
	h.mu.RUnlock()

	for _, sess := range live {
		if sess.deliver(d.evt) {
			continue
		}
		if sess.Closed() {
			continue
		}
		h.metrics.RecordFanoutDropped(context.Background(), string(d.evt.Type))
		h.log.Warn("live event dropped, session buffer full",
			zap.String("session_id", sess.ID),
			zap.String("user_id", sess.UserID),
			zap.String("channel_id", ch.id),
			zap.String("event_type", string(d.evt.Type)),
		)
	}
}

// Close deregisters every session. Later registrations fail.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.Deregister(id)
	}
}

func (h *Hub) attachLocked(sess *Session, channelID string) {
	ch := h.channels[channelID]
	if ch == nil {
		ch = &channel{id: channelID, subs: make(map[string]*Session)}
		h.channels[channelID] = ch
	}
	ch.subs[sess.ID] = sess
	sess.channels[channelID] = struct{}{}
}

func (h *Hub) detachLocked(sess *Session, channelID string) {
	delete(sess.channels, channelID)
	ch := h.channels[channelID]
	if ch == nil {
		return
	}
	delete(ch.subs, sess.ID)
	if len(ch.subs) == 0 {
		delete(h.channels, channelID)
	}
}
