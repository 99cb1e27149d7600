package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	challengedomain "github.com/smallbiznis/goalforge/internal/challenge/domain"
	obscontext "github.com/smallbiznis/goalforge/internal/observability/context"
	obslogger "github.com/smallbiznis/goalforge/internal/observability/logger"
	obstracing "github.com/smallbiznis/goalforge/internal/observability/tracing"
	"github.com/smallbiznis/goalforge/internal/realtime"
	"go.uber.org/zap"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = livePongWait * 9 / 10
	liveReadLimit  = 8 << 10
)

const (
	frameJoinChannel  = "join-channel"
	frameLeaveChannel = "leave-channel"
	frameSendMessage  = "send-message"
	frameTyping       = "typing"
)

type clientFrame struct {
	Type      string `json:"type"`
	ChannelID string `json:"channel_id"`
	Text      string `json:"text"`
}

type errorFrame struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type typingPayload struct {
	UserID string `json:"user_id"`
}

var errUnknownFrame = errors.New("unknown_frame")

func newUpgrader(origins []string) *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(origins))
	allowAll := len(origins) == 0
	for _, origin := range origins {
		if origin == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(origin, "/")] = struct{}{}
	}

	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[strings.TrimRight(origin, "/")]
			return ok
		},
	}
}

// ServeLive authenticates before upgrading. A rejected token never gets a socket.
func (s *Server) ServeLive(c *gin.Context) {
	token := liveToken(c)
	if token == "" {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	sess, err := s.registry.Register(c.Request.Context(), token)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set(obstracing.GinSessionKey, sess.ID)

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already answered the client.
		s.registry.Deregister(sess.ID)
		obslogger.FromContext(c.Request.Context()).Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx := obscontext.WithUserID(c.Request.Context(), sess.UserID)
	ctx = obscontext.WithSessionID(ctx, sess.ID)

	lc := &liveConn{
		server: s,
		conn:   conn,
		sess:   sess,
		log:    obslogger.WithContext(ctx, s.log),
	}
	lc.log.Info("live session opened")

	done := make(chan struct{})
	go func() {
		defer close(done)
		lc.writeLoop()
	}()
	lc.readLoop(ctx)

	s.registry.Deregister(sess.ID)
	<-done
	lc.log.Info("live session closed", zap.Duration("duration", time.Since(sess.ConnectedAt)))
}

type liveConn struct {
	server *Server
	conn   *websocket.Conn
	sess   *realtime.Session
	log    *zap.Logger
}

// writeLoop is the only writer on the socket. It ends when the session
// stream is closed by Deregister or a write fails.
func (l *liveConn) writeLoop() {
	ticker := time.NewTicker(livePingPeriod)
	defer func() {
		ticker.Stop()
		_ = l.conn.Close()
	}()

	events := l.sess.Events()
	for {
		select {
		case evt, ok := <-events:
			_ = l.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if !ok {
				_ = l.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := l.conn.WriteJSON(evt); err != nil {
				l.log.Debug("live write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = l.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (l *liveConn) readLoop(ctx context.Context) {
	l.conn.SetReadLimit(liveReadLimit)
	_ = l.conn.SetReadDeadline(time.Now().Add(livePongWait))
	l.conn.SetPongHandler(func(string) error {
		return l.conn.SetReadDeadline(time.Now().Add(livePongWait))
	})

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				l.log.Debug("live read failed", zap.Error(err))
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			l.sendError("", invalidRequestError())
			continue
		}
		frameCtx, span := obstracing.StartFrame(ctx, knownFrame(frame.Type), frame.ChannelID)
		err = l.handle(frameCtx, frame)
		obstracing.EndFrame(span, err)
		if err != nil {
			l.sendError(frame.ChannelID, err)
		}
	}
}

func (l *liveConn) handle(ctx context.Context, frame clientFrame) error {
	channelID := strings.TrimSpace(frame.ChannelID)

	switch frame.Type {
	case frameJoinChannel:
		return l.join(ctx, channelID)
	case frameLeaveChannel:
		if _, _, err := realtime.ParseChannel(channelID); err != nil {
			return err
		}
		l.server.router.Unsubscribe(l.sess.ID, channelID)
		return nil
	case frameSendMessage:
		challengeID, err := challengeIDFromChannel(channelID)
		if err != nil {
			return err
		}
		_, err = l.server.challengeSvc.PostMessage(ctx, l.sess.UserID, challengeID, frame.Text)
		return err
	case frameTyping:
		return l.typing(ctx, channelID)
	default:
		return errUnknownFrame
	}
}

// knownFrame keeps client-chosen strings out of span names.
func knownFrame(frameType string) string {
	switch frameType {
	case frameJoinChannel, frameLeaveChannel, frameSendMessage, frameTyping:
		return frameType
	}
	return ""
}

// join subscribes the session. For challenge channels the subscription and
// the channel-history frame are queued while the chat is held still, so the
// history is complete and every later new-message follows it exactly once.
// Only the joining session receives channel-history.
func (l *liveConn) join(ctx context.Context, channelID string) error {
	kind, challengeID, err := realtime.ParseChannel(channelID)
	if err != nil {
		return err
	}
	if kind != realtime.KindChallenge {
		return l.server.router.Subscribe(ctx, l.sess.ID, channelID)
	}

	return l.server.challengeSvc.OpenChat(ctx, l.sess.UserID, challengeID, func(history []challengedomain.MessageResponse) error {
		if err := l.server.router.Subscribe(ctx, l.sess.ID, channelID); err != nil {
			return err
		}
		l.server.router.PublishTo(channelID, l.sess.ID, realtime.Event{
			Type:      realtime.EventChannelHistory,
			ChannelID: channelID,
			Payload:   history,
			SentAt:    l.server.clock.Now(),
		})
		return nil
	})
}

func (l *liveConn) typing(ctx context.Context, channelID string) error {
	challengeID, err := challengeIDFromChannel(channelID)
	if err != nil {
		return err
	}
	ok, err := l.server.challengeSvc.IsParticipant(ctx, challengeID, l.sess.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return realtime.ErrForbidden
	}

	l.server.router.Publish(channelID, realtime.Event{
		Type:      realtime.EventTyping,
		ChannelID: channelID,
		Payload:   typingPayload{UserID: l.sess.UserID},
		SentAt:    l.server.clock.Now(),
	})
	return nil
}

// sendError routes the frame through the session's own channel so the
// write loop stays the only writer.
func (l *liveConn) sendError(channelID string, err error) {
	frame := liveErrorFrame(err)
	if frame.Code == "internal_error" {
		l.log.Warn("live frame failed", zap.Error(err))
	}
	l.server.router.PublishTo(realtime.UserChannel(l.sess.UserID), l.sess.ID, realtime.Event{
		Type:      realtime.EventError,
		ChannelID: channelID,
		Payload:   frame,
		SentAt:    l.server.clock.Now(),
	})
}

func liveErrorFrame(err error) errorFrame {
	if errors.Is(err, errUnknownFrame) {
		return errorFrame{Code: errUnknownFrame.Error(), Message: "unknown frame type"}
	}
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return errorFrame{Code: code, Message: payload.Message}
}

func challengeIDFromChannel(channelID string) (string, error) {
	kind, id, err := realtime.ParseChannel(channelID)
	if err != nil {
		return "", err
	}
	if kind != realtime.KindChallenge {
		return "", realtime.ErrInvalidChannel
	}
	return id, nil
}
