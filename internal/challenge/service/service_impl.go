package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	challengedomain "github.com/smallbiznis/goalforge/internal/challenge/domain"
	"github.com/smallbiznis/goalforge/internal/clock"
	"github.com/smallbiznis/goalforge/internal/observability/metrics"
	"github.com/smallbiznis/goalforge/internal/realtime"
	"github.com/smallbiznis/goalforge/pkg/db"
	"github.com/smallbiznis/goalforge/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Calendar  *clock.Calendar
	Repo      challengedomain.Repository
	Governor  challengedomain.Governor `optional:"true"`
	Publisher realtime.Publisher       `optional:"true"`
	Metrics   *metrics.Metrics         `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	calendar  *clock.Calendar
	repo      challengedomain.Repository
	governor  challengedomain.Governor
	publisher realtime.Publisher
	metrics   *metrics.Metrics
	seq       *sequencer
}

func New(p Params) challengedomain.Service {
	return NewService(p)
}

// NewService returns the concrete type for wiring adapters that need more than the interface.
func NewService(p Params) *Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("challenge.service"),
		genID:     p.GenID,
		calendar:  p.Calendar,
		repo:      p.Repo,
		governor:  p.Governor,
		publisher: p.Publisher,
		metrics:   p.Metrics,
		seq:       newSequencer(),
	}
}

func (s *Service) Create(ctx context.Context, userID string, req challengedomain.CreateRequest) (*challengedomain.Response, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, challengedomain.ErrInvalidUser
	}

	title := strings.TrimSpace(req.Title)
	if title == "" || utf8.RuneCountInString(title) > challengedomain.MaxTitleLength {
		return nil, challengedomain.ErrInvalidTitle
	}
	description := strings.TrimSpace(req.Description)
	if utf8.RuneCountInString(description) > challengedomain.MaxDescriptionLength {
		return nil, challengedomain.ErrInvalidDesc
	}
	goalType := challengedomain.GoalType(strings.ToLower(strings.TrimSpace(string(req.GoalType))))
	if goalType == "" {
		goalType = challengedomain.GoalHabitsCompleted
	}
	if !goalType.Valid() || req.GoalTarget <= 0 {
		return nil, challengedomain.ErrInvalidGoal
	}

	today := s.calendar.Today()
	start := strings.TrimSpace(req.StartDate)
	if start == "" {
		start = today
	}
	end := strings.TrimSpace(req.EndDate)
	if err := validateDates(start, end, today); err != nil {
		return nil, err
	}

	now := s.calendar.Now().UTC()
	challenge := &challengedomain.Challenge{
		ID:          s.genID.Generate(),
		CreatorID:   userID,
		Title:       title,
		Slug:        slug.Make(title),
		Description: description,
		GoalType:    goalType,
		GoalTarget:  req.GoalTarget,
		StartDate:   start,
		EndDate:     end,
		Status:      challengedomain.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	creator := &challengedomain.Participant{
		ID:          s.genID.Generate(),
		ChallengeID: challenge.ID,
		UserID:      userID,
		JoinedAt:    now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertChallenge(ctx, tx, challenge); err != nil {
			return err
		}
		return s.repo.InsertParticipant(ctx, tx, creator)
	})
	if err != nil {
		return nil, s.storeErr(err, "create challenge")
	}

	s.log.Info("challenge created",
		zap.String("challenge_id", challenge.ID.String()),
		zap.String("creator_id", userID),
		zap.String("goal_type", string(goalType)),
	)
	return toResponse(challenge), nil
}

func (s *Service) List(ctx context.Context, userID string) ([]challengedomain.Response, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, challengedomain.ErrInvalidUser
	}
	items, err := s.repo.ListForUser(ctx, s.db, userID)
	if err != nil {
		return nil, s.storeErr(err, "list challenges")
	}

	today := s.calendar.Today()
	resp := make([]challengedomain.Response, 0, len(items))
	for i := range items {
		if err := s.settle(ctx, &items[i], today); err != nil {
			return nil, err
		}
		resp = append(resp, *toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, userID, id string) (*challengedomain.DetailResponse, error) {
	challenge, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, challenge, strings.TrimSpace(userID))
}

func (s *Service) Join(ctx context.Context, userID, id string) (*challengedomain.DetailResponse, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, challengedomain.ErrInvalidUser
	}
	challenge, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if challenge.Status != challengedomain.StatusActive {
		return nil, challengedomain.ErrNotActive
	}

	unlock := s.seq.lock(challenge.ID)
	defer unlock()

	existing, err := s.repo.FindParticipant(ctx, s.db, challenge.ID, userID)
	if err != nil {
		return nil, s.storeErr(err, "find participant")
	}
	if existing != nil {
		return nil, challengedomain.ErrAlreadyJoined
	}

	participant := &challengedomain.Participant{
		ID:          s.genID.Generate(),
		ChallengeID: challenge.ID,
		UserID:      userID,
		JoinedAt:    s.calendar.Now().UTC(),
	}
	if err := s.repo.InsertParticipant(ctx, s.db, participant); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, challengedomain.ErrAlreadyJoined
		}
		return nil, s.storeErr(err, "join challenge")
	}

	detail, err := s.detail(ctx, challenge, userID)
	if err != nil {
		return nil, err
	}
	s.publishLeaderboard(challenge.ID, detail.Participants)
	return detail, nil
}

func (s *Service) Cancel(ctx context.Context, userID, id string) (*challengedomain.Response, error) {
	userID = strings.TrimSpace(userID)
	challenge, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if challenge.CreatorID != userID {
		return nil, challengedomain.ErrForbidden
	}
	if challenge.Status != challengedomain.StatusActive {
		return nil, challengedomain.ErrNotActive
	}

	now := s.calendar.Now().UTC()
	ok, err := s.repo.TransitionStatus(ctx, s.db, challenge.ID, challengedomain.StatusCancelled, now)
	if err != nil {
		return nil, s.storeErr(err, "cancel challenge")
	}
	if !ok {
		return nil, challengedomain.ErrNotActive
	}
	challenge.Status = challengedomain.StatusCancelled
	challenge.UpdatedAt = now
	return toResponse(challenge), nil
}

// UpdateScore sets the caller's score and broadcasts the recomputed ordering.
// Score writes of one challenge are serialized through publish, so the last
// leaderboard-update a subscriber sees matches the stored ordering.
func (s *Service) UpdateScore(ctx context.Context, userID, id string, score int64) ([]challengedomain.LeaderboardEntry, error) {
	userID = strings.TrimSpace(userID)
	if score < 0 {
		return nil, challengedomain.ErrInvalidScore
	}
	challenge, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, challenge.ID, userID); err != nil {
		return nil, err
	}
	if challenge.Status != challengedomain.StatusActive {
		return nil, challengedomain.ErrNotActive
	}

	unlock := s.seq.lock(challenge.ID)
	defer unlock()

	var entries []challengedomain.LeaderboardEntry
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpdateScore(ctx, tx, challenge.ID, userID, score); err != nil {
			return err
		}
		participants, err := s.repo.ListParticipants(ctx, tx, challenge.ID)
		if err != nil {
			return err
		}
		entries = rank(participants)
		return nil
	})
	if err != nil {
		return nil, s.storeErr(err, "update score")
	}

	s.publishLeaderboard(challenge.ID, entries)
	return entries, nil
}

func (s *Service) Leaderboard(ctx context.Context, id string) ([]challengedomain.LeaderboardEntry, error) {
	challengeID, err := challengedomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	challenge, err := s.repo.FindChallenge(ctx, s.db, challengeID)
	if err != nil {
		return nil, s.storeErr(err, "load challenge")
	}
	if challenge == nil {
		return nil, challengedomain.ErrNotFound
	}
	participants, err := s.repo.ListParticipants(ctx, s.db, challengeID)
	if err != nil {
		return nil, s.storeErr(err, "list participants")
	}
	return rank(participants), nil
}

// PostMessage appends a chat message and fans it out to the challenge channel.
func (s *Service) PostMessage(ctx context.Context, userID, id, body string) (*challengedomain.MessageResponse, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, challengedomain.ErrInvalidUser
	}
	challengeID, err := challengedomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}

	if s.governor != nil {
		if err := s.governor.AllowMessage(ctx, userID); err != nil {
			s.metrics.RecordMessage(ctx, "rate_limited")
			return nil, err
		}
	}

	body = strings.TrimSpace(body)
	if body == "" {
		s.metrics.RecordMessage(ctx, "rejected")
		return nil, challengedomain.ErrMessageEmpty
	}
	if utf8.RuneCountInString(body) > challengedomain.MaxMessageLength {
		s.metrics.RecordMessage(ctx, "rejected")
		return nil, challengedomain.ErrMessageTooLong
	}

	if err := s.requireParticipant(ctx, challengeID, userID); err != nil {
		s.metrics.RecordMessage(ctx, "forbidden")
		return nil, err
	}

	unlock := s.seq.lock(challengeID)
	defer unlock()

	message := &challengedomain.Message{
		ID:          s.genID.Generate(),
		ChallengeID: challengeID,
		UserID:      userID,
		Body:        body,
		CreatedAt:   s.calendar.Now().UTC(),
	}
	if err := s.repo.InsertMessage(ctx, s.db, message); err != nil {
		s.metrics.RecordMessage(ctx, "error")
		return nil, s.storeErr(err, "insert message")
	}
	s.metrics.RecordMessage(ctx, "stored")

	resp := toMessageResponse(message)
	if s.publisher != nil {
		s.publisher.Publish(realtime.ChallengeChannel(challengeID.String()), realtime.Event{
			Type:    realtime.EventNewMessage,
			Payload: resp,
			SentAt:  message.CreatedAt,
		})
	}
	return &resp, nil
}

func (s *Service) ListMessages(ctx context.Context, userID, id string, page pagination.Pagination) (*challengedomain.MessagePage, error) {
	challengeID, err := challengedomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, challengeID, strings.TrimSpace(userID)); err != nil {
		return nil, err
	}

	cursor, err := pagination.DecodeCursor(page.PageToken)
	if err != nil {
		return nil, err
	}
	var before *snowflake.ID
	if cursor != nil {
		parsed, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		before = &parsed
	}

	limit := page.Limit()
	rows, err := s.repo.ListMessages(ctx, s.db, challengeID, before, limit+1)
	if err != nil {
		return nil, s.storeErr(err, "list messages")
	}
	rows, info, err := pagination.BuildPageInfo(rows, limit, func(m challengedomain.Message) pagination.Cursor {
		return pagination.Cursor{ID: m.ID.String(), CreatedAt: m.CreatedAt.Format(time.RFC3339Nano)}
	})
	if err != nil {
		return nil, err
	}

	messages := make([]challengedomain.MessageResponse, 0, len(rows))
	for i := range rows {
		messages = append(messages, toMessageResponse(&rows[i]))
	}
	return &challengedomain.MessagePage{Messages: messages, PageInfo: info}, nil
}

func (s *Service) RecentMessages(ctx context.Context, userID, id string) ([]challengedomain.MessageResponse, error) {
	challengeID, err := challengedomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, challengeID, strings.TrimSpace(userID)); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListMessages(ctx, s.db, challengeID, nil, challengedomain.HistorySize)
	if err != nil {
		return nil, s.storeErr(err, "recent messages")
	}

	messages := make([]challengedomain.MessageResponse, len(rows))
	for i := range rows {
		messages[len(rows)-1-i] = toMessageResponse(&rows[i])
	}
	return messages, nil
}

// OpenChat hands attach the recent history while no message of the challenge
// can be stored or published. attach subscribes the caller and queues the
// history, so live messages follow it without gaps or duplicates.
func (s *Service) OpenChat(ctx context.Context, userID, id string, attach func([]challengedomain.MessageResponse) error) error {
	challengeID, err := challengedomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return err
	}

	unlock := s.seq.lock(challengeID)
	defer unlock()

	history, err := s.RecentMessages(ctx, userID, id)
	if err != nil {
		return err
	}
	return attach(history)
}

func (s *Service) IsParticipant(ctx context.Context, id, userID string) (bool, error) {
	challengeID, err := challengedomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return false, err
	}
	participant, err := s.repo.FindParticipant(ctx, s.db, challengeID, strings.TrimSpace(userID))
	if err != nil {
		return false, s.storeErr(err, "find participant")
	}
	return participant != nil, nil
}

func (s *Service) ActiveChallengeIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.repo.ActiveIDsForUser(ctx, s.db, strings.TrimSpace(userID), s.calendar.Today())
	if err != nil {
		return nil, s.storeErr(err, "active challenges")
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out, nil
}

// CompleteExpired closes every active challenge whose end date has passed.
func (s *Service) CompleteExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.CompleteEnded(ctx, s.db, s.calendar.Today(), s.calendar.Now().UTC())
	if err != nil {
		return 0, s.storeErr(err, "complete expired challenges")
	}
	return n, nil
}

func (s *Service) load(ctx context.Context, id string) (*challengedomain.Challenge, error) {
	challengeID, err := challengedomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	challenge, err := s.repo.FindChallenge(ctx, s.db, challengeID)
	if err != nil {
		return nil, s.storeErr(err, "load challenge")
	}
	if challenge == nil {
		return nil, challengedomain.ErrNotFound
	}
	if err := s.settle(ctx, challenge, s.calendar.Today()); err != nil {
		return nil, err
	}
	return challenge, nil
}

// settle completes an active challenge once its end date is behind us.
func (s *Service) settle(ctx context.Context, c *challengedomain.Challenge, today string) error {
	if c.Status != challengedomain.StatusActive || c.EndDate >= today {
		return nil
	}
	now := s.calendar.Now().UTC()
	if _, err := s.repo.TransitionStatus(ctx, s.db, c.ID, challengedomain.StatusCompleted, now); err != nil {
		return s.storeErr(err, "complete challenge")
	}
	c.Status = challengedomain.StatusCompleted
	c.UpdatedAt = now
	return nil
}

func (s *Service) requireParticipant(ctx context.Context, challengeID snowflake.ID, userID string) error {
	if userID == "" {
		return challengedomain.ErrForbidden
	}
	participant, err := s.repo.FindParticipant(ctx, s.db, challengeID, userID)
	if err != nil {
		return s.storeErr(err, "find participant")
	}
	if participant == nil {
		return challengedomain.ErrForbidden
	}
	return nil
}

func (s *Service) detail(ctx context.Context, c *challengedomain.Challenge, userID string) (*challengedomain.DetailResponse, error) {
	participants, err := s.repo.ListParticipants(ctx, s.db, c.ID)
	if err != nil {
		return nil, s.storeErr(err, "list participants")
	}
	entries := rank(participants)
	joined := false
	for _, e := range entries {
		if e.UserID == userID {
			joined = true
			break
		}
	}
	return &challengedomain.DetailResponse{
		Response:     *toResponse(c),
		Participants: entries,
		Joined:       joined,
	}, nil
}

func (s *Service) publishLeaderboard(challengeID snowflake.ID, entries []challengedomain.LeaderboardEntry) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(realtime.ChallengeChannel(challengeID.String()), realtime.Event{
		Type: realtime.EventLeaderboardUpdate,
		Payload: challengedomain.LeaderboardUpdate{
			ChallengeID: challengeID.String(),
			Entries:     entries,
		},
	})
}

func (s *Service) storeErr(err error, op string) error {
	if db.IsUnavailableErr(err) {
		s.log.Error(op+" failed, store unavailable", zap.Error(err))
		return fmt.Errorf("%w: %v", challengedomain.ErrStoreUnavailable, err)
	}
	s.log.Error(op+" failed", zap.Error(err))
	return err
}

// rank expects participants ordered by score desc, then join order.
func rank(participants []challengedomain.Participant) []challengedomain.LeaderboardEntry {
	entries := make([]challengedomain.LeaderboardEntry, 0, len(participants))
	for i, p := range participants {
		entries = append(entries, challengedomain.LeaderboardEntry{
			Rank:     i + 1,
			UserID:   p.UserID,
			Score:    p.Score,
			JoinedAt: p.JoinedAt,
		})
	}
	return entries
}

func validateDates(start, end, today string) error {
	if end == "" {
		return challengedomain.ErrInvalidDates
	}
	span, err := clock.DaysBetween(start, end)
	if err != nil || span < 0 {
		return challengedomain.ErrInvalidDates
	}
	if left, err := clock.DaysBetween(today, end); err != nil || left < 0 {
		return challengedomain.ErrInvalidDates
	}
	return nil
}

func toResponse(c *challengedomain.Challenge) *challengedomain.Response {
	return &challengedomain.Response{
		ID:          c.ID.String(),
		CreatorID:   c.CreatorID,
		Title:       c.Title,
		Slug:        c.Slug,
		Description: c.Description,
		GoalType:    c.GoalType,
		GoalTarget:  c.GoalTarget,
		StartDate:   c.StartDate,
		EndDate:     c.EndDate,
		Status:      c.Status,
		CreatedAt:   c.CreatedAt,
	}
}

func toMessageResponse(m *challengedomain.Message) challengedomain.MessageResponse {
	return challengedomain.MessageResponse{
		ID:          m.ID.String(),
		ChallengeID: m.ChallengeID.String(),
		UserID:      m.UserID,
		Body:        m.Body,
		CreatedAt:   m.CreatedAt,
	}
}

