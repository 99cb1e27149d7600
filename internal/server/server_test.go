package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	authservice "github.com/smallbiznis/goalforge/internal/auth/service"
	challengedomain "github.com/smallbiznis/goalforge/internal/challenge/domain"
	challengerepo "github.com/smallbiznis/goalforge/internal/challenge/repository"
	challengeservice "github.com/smallbiznis/goalforge/internal/challenge/service"
	"github.com/smallbiznis/goalforge/internal/clock"
	"github.com/smallbiznis/goalforge/internal/config"
	habitrepo "github.com/smallbiznis/goalforge/internal/habit/repository"
	habitservice "github.com/smallbiznis/goalforge/internal/habit/service"
	progressdomain "github.com/smallbiznis/goalforge/internal/progress/domain"
	progressrepo "github.com/smallbiznis/goalforge/internal/progress/repository"
	progressservice "github.com/smallbiznis/goalforge/internal/progress/service"
	"github.com/smallbiznis/goalforge/internal/ratelimit"
	"github.com/smallbiznis/goalforge/internal/realtime"
	"github.com/smallbiznis/goalforge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

type harness struct {
	engine *gin.Engine
	issuer *authservice.JWTProvider
	hub    *realtime.Hub
	clock  *clock.FakeClock
}

func newHarness(t *testing.T, limiter *ratelimit.Limiter) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	fc := clock.NewFakeClock(testNow)
	calendar := clock.NewCalendarIn(fc, time.UTC)
	log := zap.NewNop()
	jwt := authservice.NewJWTProvider("test-secret", "goalforge", fc, log)

	habits := habitrepo.Provide()
	challengeRepo := challengerepo.Provide()
	hub := realtime.NewHub(jwt, challengeservice.NewChannelAuthorizer(db, challengeRepo), fc, log, nil, 16)
	t.Cleanup(hub.Close)

	challenges := challengeservice.New(challengeservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Calendar:  calendar,
		Repo:      challengeRepo,
		Governor:  limiter,
		Publisher: hub,
	})
	progress := progressservice.New(progressservice.Params{
		DB:           db,
		Log:          log,
		GenID:        node,
		Calendar:     calendar,
		Gamification: config.NewStaticGamificationConfigHolder(config.DefaultGamificationConfig()),
		Repo:         progressrepo.Provide(),
		Habits:       habits,
		Governor:     limiter,
		Challenges:   challenges,
		Publisher:    hub,
	})

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	NewServer(ServerParams{
		Gin:          engine,
		Cfg:          config.Config{CORSOrigins: []string{"*"}},
		Log:          log,
		Clock:        fc,
		Auth:         jwt,
		Limiter:      limiter,
		HabitSvc:     habitservice.New(habitservice.Params{DB: db, Log: log, GenID: node, Clock: fc, Repo: habits}),
		ProgressSvc:  progress,
		ChallengeSvc: challenges,
		Registry:     hub,
		Router:       hub,
	})

	return &harness{engine: engine, issuer: jwt, hub: hub, clock: fc}
}

func (h *harness) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := h.issuer.Issue(userID, time.Hour)
	require.NoError(t, err)
	return token
}

func (h *harness) do(t *testing.T, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+h.token(t, userID))
	}
	resp := httptest.NewRecorder()
	h.engine.ServeHTTP(resp, req)
	return resp
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func errorType(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body.Error.Type
}

func (h *harness) createHabit(t *testing.T, userID, title string) string {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/api/habits", userID, `{"title":"`+title+`"}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var habit struct {
		ID string `json:"id"`
	}
	decodeData(t, resp, &habit)
	return habit.ID
}

func (h *harness) createChallenge(t *testing.T, userID string) string {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/api/challenges", userID,
		`{"title":"March Reading Sprint","goal_type":"habits_completed","goal_target":20,"end_date":"2026-03-31"}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var challenge challengedomain.Response
	decodeData(t, resp, &challenge)
	return challenge.ID
}

func TestAPIRequiresBearerToken(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.do(t, http.MethodGet, "/api/habits", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "unauthorized", errorType(t, resp))

	req := httptest.NewRequest(http.MethodGet, "/api/habits", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCompleteHabitStatusMapping(t *testing.T) {
	h := newHarness(t, nil)
	habitID := h.createHabit(t, "alice", "Read 20 pages")

	resp := h.do(t, http.MethodPost, "/api/habits/"+habitID+"/complete", "alice", `{"submitted_at":"2026-03-02T09:29:00Z"}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var result progressdomain.SubmitResult
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.NewStreakLength)
	assert.Equal(t, "2026-03-02", result.Date)

	resp = h.do(t, http.MethodPost, "/api/habits/"+habitID+"/complete", "alice", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "already_recorded_today", errorType(t, resp))

	resp = h.do(t, http.MethodPost, "/api/habits/"+habitID+"/complete", "mallory", "")
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = h.do(t, http.MethodPost, "/api/habits/123456789/complete", "alice", "")
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = h.do(t, http.MethodPost, "/api/habits/"+habitID+"/complete", "alice", `{"submitted_at":"yesterday"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	h.clock.Advance(24 * time.Hour)
	resp = h.do(t, http.MethodPost, "/api/habits/"+habitID+"/complete", "alice", "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	assert.Equal(t, 2, result.NewStreakLength)

	resp = h.do(t, http.MethodGet, "/api/streaks", "alice", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var streak progressdomain.StreakSummary
	decodeData(t, resp, &streak)
	assert.Equal(t, 2, streak.Current)
	assert.True(t, streak.CompletedToday)
}

func TestDeletedHabitIsNotFound(t *testing.T) {
	h := newHarness(t, nil)
	habitID := h.createHabit(t, "alice", "Meditate")

	resp := h.do(t, http.MethodDelete, "/api/habits/"+habitID, "alice", "")
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = h.do(t, http.MethodPost, "/api/habits/"+habitID+"/complete", "alice", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestCompletionRateLimited(t *testing.T) {
	limiter := ratelimit.NewLimiterWith(ratelimit.NewMemoryWindow(clock.NewFakeClock(testNow)), config.RateLimitConfig{
		CompletionLimit:  1,
		CompletionWindow: time.Minute,
	}, zap.NewNop(), nil)
	h := newHarness(t, limiter)

	first := h.createHabit(t, "alice", "Run")
	second := h.createHabit(t, "alice", "Stretch")

	resp := h.do(t, http.MethodPost, "/api/habits/"+first+"/complete", "alice", "")
	require.Equal(t, http.StatusOK, resp.Code)

	resp = h.do(t, http.MethodPost, "/api/habits/"+second+"/complete", "alice", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "rate_limited", errorType(t, resp))
	assert.NotEmpty(t, resp.Header().Get("Retry-After"))
}

func TestChallengeRoutesEnforceMembership(t *testing.T) {
	h := newHarness(t, nil)
	challengeID := h.createChallenge(t, "alice")

	resp := h.do(t, http.MethodPost, "/api/challenges/"+challengeID+"/join", "bob", "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = h.do(t, http.MethodPost, "/api/challenges/"+challengeID+"/join", "bob", "")
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp = h.do(t, http.MethodPost, "/api/challenges/"+challengeID+"/messages", "bob", `{"body":"day one done"}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	resp = h.do(t, http.MethodPost, "/api/challenges/"+challengeID+"/messages", "bob", `{"body":"   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "message_empty", errorType(t, resp))

	resp = h.do(t, http.MethodPost, "/api/challenges/"+challengeID+"/messages", "carol", `{"body":"let me in"}`)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = h.do(t, http.MethodGet, "/api/challenges/"+challengeID+"/messages", "carol", "")
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = h.do(t, http.MethodGet, "/api/challenges/"+challengeID+"/messages", "alice", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var messages []challengedomain.MessageResponse
	decodeData(t, resp, &messages)
	require.Len(t, messages, 1)
	assert.Equal(t, "day one done", messages[0].Body)

	resp = h.do(t, http.MethodPut, "/api/challenges/"+challengeID+"/score", "bob", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = h.do(t, http.MethodPut, "/api/challenges/"+challengeID+"/score", "bob", `{"score":5}`)
	require.Equal(t, http.StatusOK, resp.Code)
	var board []challengedomain.LeaderboardEntry
	decodeData(t, resp, &board)
	require.Len(t, board, 2)
	assert.Equal(t, "bob", board[0].UserID)

	resp = h.do(t, http.MethodGet, "/api/challenges/not-a-number", "alice", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

type liveFrame struct {
	Type      string          `json:"type"`
	ChannelID string          `json:"channel_id"`
	Payload   json.RawMessage `json:"payload"`
}

func dialLive(t *testing.T, srv *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	return websocket.DefaultDialer.Dial(url, nil)
}

func readFrame(t *testing.T, conn *websocket.Conn) liveFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame liveFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestLiveRejectsBadTokenBeforeUpgrade(t *testing.T) {
	h := newHarness(t, nil)
	srv := httptest.NewServer(h.engine)
	defer srv.Close()

	_, resp, err := dialLive(t, srv, "forged")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, h.hub.Count())
}

func TestLiveChatRoundTrip(t *testing.T) {
	h := newHarness(t, nil)
	challengeID := h.createChallenge(t, "alice")
	resp := h.do(t, http.MethodPost, "/api/challenges/"+challengeID+"/messages", "alice", `{"body":"welcome"}`)
	require.Equal(t, http.StatusCreated, resp.Code)

	srv := httptest.NewServer(h.engine)
	defer srv.Close()

	conn, _, err := dialLive(t, srv, h.token(t, "alice"))
	require.NoError(t, err)
	defer conn.Close()

	channelID := realtime.ChallengeChannel(challengeID)
	require.NoError(t, conn.WriteJSON(clientFrame{Type: frameJoinChannel, ChannelID: channelID}))

	history := readFrame(t, conn)
	require.Equal(t, string(realtime.EventChannelHistory), history.Type)
	var backlog []challengedomain.MessageResponse
	require.NoError(t, json.Unmarshal(history.Payload, &backlog))
	require.Len(t, backlog, 1)
	assert.Equal(t, "welcome", backlog[0].Body)

	require.NoError(t, conn.WriteJSON(clientFrame{Type: frameSendMessage, ChannelID: channelID, Text: "hello over the wire"}))
	msg := readFrame(t, conn)
	require.Equal(t, string(realtime.EventNewMessage), msg.Type)
	assert.Equal(t, channelID, msg.ChannelID)
	var posted challengedomain.MessageResponse
	require.NoError(t, json.Unmarshal(msg.Payload, &posted))
	assert.Equal(t, "hello over the wire", posted.Body)
	assert.Equal(t, "alice", posted.UserID)

	require.NoError(t, conn.WriteJSON(clientFrame{Type: frameJoinChannel, ChannelID: realtime.UserChannel("bob")}))
	denied := readFrame(t, conn)
	require.Equal(t, string(realtime.EventError), denied.Type)
	var errFrame errorFrame
	require.NoError(t, json.Unmarshal(denied.Payload, &errFrame))
	assert.Equal(t, "forbidden", errFrame.Code)

	require.NoError(t, conn.WriteJSON(clientFrame{Type: "shout"}))
	unknown := readFrame(t, conn)
	require.Equal(t, string(realtime.EventError), unknown.Type)
	require.NoError(t, json.Unmarshal(unknown.Payload, &errFrame))
	assert.Equal(t, "unknown_frame", errFrame.Code)
}

func TestLiveProgressRecordedReachesOwnChannel(t *testing.T) {
	h := newHarness(t, nil)
	habitID := h.createHabit(t, "alice", "Journal")

	srv := httptest.NewServer(h.engine)
	defer srv.Close()

	conn, _, err := dialLive(t, srv, h.token(t, "alice"))
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp := h.do(t, http.MethodPost, "/api/habits/"+habitID+"/complete", "alice", "")
	require.Equal(t, http.StatusOK, resp.Code)

	frame := readFrame(t, conn)
	require.Equal(t, string(realtime.EventProgressRecorded), frame.Type)
	assert.Equal(t, realtime.UserChannel("alice"), frame.ChannelID)
	var recorded progressdomain.ProgressRecorded
	require.NoError(t, json.Unmarshal(frame.Payload, &recorded))
	assert.Equal(t, 1, recorded.NewStreakLength)
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err      error
		status   int
		typeName string
	}{
		{progressdomain.ErrAlreadyRecordedToday, http.StatusBadRequest, "already_recorded_today"},
		{progressdomain.ErrNotOwner, http.StatusForbidden, "forbidden"},
		{progressdomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{progressdomain.ErrStoreUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
		{challengedomain.ErrNotActive, http.StatusConflict, "conflict"},
		{challengedomain.ErrMessageTooLong, http.StatusBadRequest, "message_too_long"},
		{challengedomain.ErrInvalidTitle, http.StatusBadRequest, "validation_error"},
		{&ratelimit.LimitError{Endpoint: "completion", Limit: 1, RetryAfter: time.Second}, http.StatusTooManyRequests, "rate_limited"},
		{realtime.ErrUnauthenticated, http.StatusUnauthorized, "unauthorized"},
		{errors.New("pq: relation does not exist"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, payload := mapError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.typeName, payload.Type, tc.err.Error())
	}
}

func TestRetryAfterRoundsUp(t *testing.T) {
	err := &ratelimit.LimitError{RetryAfter: 1500 * time.Millisecond}
	assert.Equal(t, "2", retryAfterSeconds(err))
	assert.Equal(t, "1", retryAfterSeconds(context.DeadlineExceeded))
}
