package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/goalforge/internal/clock"
	"github.com/smallbiznis/goalforge/internal/config"
	habitdomain "github.com/smallbiznis/goalforge/internal/habit/domain"
	"github.com/smallbiznis/goalforge/internal/observability/metrics"
	progressdomain "github.com/smallbiznis/goalforge/internal/progress/domain"
	"github.com/smallbiznis/goalforge/internal/progress/streak"
	"github.com/smallbiznis/goalforge/internal/providers/notification"
	"github.com/smallbiznis/goalforge/internal/realtime"
	"github.com/smallbiznis/goalforge/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Calendar     *clock.Calendar
	Gamification *config.GamificationConfigHolder
	Repo         progressdomain.Repository
	Habits       habitdomain.Repository
	Governor     progressdomain.Governor
	Challenges   progressdomain.ChallengeDirectory `optional:"true"`
	Publisher    realtime.Publisher                `optional:"true"`
	Notifier     notification.Provider             `optional:"true"`
	Metrics      *metrics.Metrics                  `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	calendar     *clock.Calendar
	gamification *config.GamificationConfigHolder
	repo         progressdomain.Repository
	habits       habitdomain.Repository
	governor     progressdomain.Governor
	challenges   progressdomain.ChallengeDirectory
	publisher    realtime.Publisher
	notifier     notification.Provider
	metrics      *metrics.Metrics
}

func New(p Params) progressdomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("progress.service"),
		genID:        p.GenID,
		calendar:     p.Calendar,
		gamification: p.Gamification,
		repo:         p.Repo,
		habits:       p.Habits,
		governor:     p.Governor,
		challenges:   p.Challenges,
		publisher:    p.Publisher,
		notifier:     p.Notifier,
		metrics:      p.Metrics,
	}
}

// SubmitCompletion records today's completion of a habit and recomputes the
// user's streak and XP in the same transaction.
func (s *Service) SubmitCompletion(ctx context.Context, req progressdomain.SubmitRequest) (*progressdomain.SubmitResult, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, progressdomain.ErrInvalidUser
	}
	habitID, err := habitdomain.ParseID(strings.TrimSpace(req.HabitID))
	if err != nil {
		return nil, progressdomain.ErrInvalidHabitID
	}

	if s.governor != nil {
		if err := s.governor.AllowCompletion(ctx, userID); err != nil {
			s.metrics.RecordCompletion(ctx, "rate_limited")
			return nil, err
		}
	}

	now := s.calendar.Now().UTC()
	today := s.calendar.Today()
	if req.SubmittedAt != nil {
		s.log.Debug("completion submitted",
			zap.String("user_id", userID),
			zap.String("habit_id", habitID.String()),
			zap.Time("client_submitted_at", *req.SubmittedAt),
			zap.String("day", today),
		)
	}

	rules := s.gamification.Get()
	result := &progressdomain.SubmitResult{
		Success: true,
		HabitID: habitID.String(),
		Date:    today,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		habit, err := s.habits.FindByID(ctx, tx, habitID)
		if err != nil {
			return err
		}
		if habit == nil || habit.UserID != userID {
			return progressdomain.ErrNotOwner
		}
		if habit.Deleted() {
			return progressdomain.ErrNotFound
		}

		exists, err := s.repo.CompletionExists(ctx, tx, habitID, today)
		if err != nil {
			return err
		}
		if exists {
			return progressdomain.ErrAlreadyRecordedToday
		}

		event := &progressdomain.CompletionEvent{
			ID:         s.genID.Generate(),
			HabitID:    habitID,
			UserID:     userID,
			Day:        today,
			RecordedAt: now,
		}
		if err := s.repo.InsertCompletion(ctx, tx, event); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return progressdomain.ErrAlreadyRecordedToday
			}
			return err
		}

		if err := s.repo.MarkDayCompleted(ctx, tx, userID, today, now); err != nil {
			return err
		}
		days, err := s.repo.CompletedDays(ctx, tx, userID, today)
		if err != nil {
			return err
		}
		length := streak.AfterAppend(days, today)
		if err := s.repo.SetStreakLength(ctx, tx, userID, today, length, now); err != nil {
			return err
		}
		result.NewStreakLength = length

		delta := int64(rules.XPForStreak(length))
		if err := s.repo.AddXP(ctx, tx, userID, delta, length, now); err != nil {
			return err
		}
		progress, err := s.repo.FindProgress(ctx, tx, userID)
		if err != nil {
			return err
		}
		if progress == nil {
			return errors.New("user progress missing after award")
		}
		level := rules.LevelForXP(progress.XP)
		if level != progress.Level {
			if err := s.repo.SetLevel(ctx, tx, userID, level); err != nil {
				return err
			}
		}
		result.XPDelta = delta
		result.XP = progress.XP
		result.Level = level

		if rules.IsMilestone(length) {
			achievement := &progressdomain.Achievement{
				ID:       s.genID.Generate(),
				UserID:   userID,
				Type:     fmt.Sprintf("streak_%d", length),
				Title:    fmt.Sprintf("%d day streak", length),
				EarnedAt: now,
			}
			inserted, err := s.repo.InsertAchievement(ctx, tx, achievement)
			if err != nil {
				return err
			}
			if inserted {
				result.Achievements = append(result.Achievements, *achievement)
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordCompletion(ctx, outcome(err))
		return nil, s.storeErr(err, "submit completion")
	}

	s.metrics.RecordCompletion(ctx, "recorded")
	s.announce(ctx, userID, result)
	return result, nil
}

// announce runs after commit. Failures here are logged and never undo the completion.
func (s *Service) announce(ctx context.Context, userID string, result *progressdomain.SubmitResult) {
	if s.publisher != nil {
		evt := realtime.Event{
			Type: realtime.EventProgressRecorded,
			Payload: progressdomain.ProgressRecorded{
				UserID:          userID,
				HabitID:         result.HabitID,
				Date:            result.Date,
				NewStreakLength: result.NewStreakLength,
				XPDelta:         result.XPDelta,
			},
			SentAt: s.calendar.Now().UTC(),
		}
		if s.challenges != nil {
			ids, err := s.challenges.ActiveChallengeIDs(ctx, userID)
			if err != nil {
				s.log.Warn("failed to resolve challenges for progress event",
					zap.String("user_id", userID),
					zap.Error(err),
				)
			}
			for _, id := range ids {
				s.publisher.Publish(realtime.ChallengeChannel(id), evt)
			}
		}
		s.publisher.Publish(realtime.UserChannel(userID), evt)
	}

	if s.notifier == nil {
		return
	}
	for _, a := range result.Achievements {
		n := notification.Achievement(userID, a.Type, a.Title, result.NewStreakLength)
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.log.Warn("achievement notification failed",
				zap.String("user_id", userID),
				zap.String("achievement", a.Type),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) CurrentStreak(ctx context.Context, userID string) (*progressdomain.StreakSummary, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, progressdomain.ErrInvalidUser
	}

	today := s.calendar.Today()
	days, err := s.repo.CompletedDays(ctx, s.db, userID, today)
	if err != nil {
		return nil, s.storeErr(err, "load completed days")
	}
	progress, err := s.repo.FindProgress(ctx, s.db, userID)
	if err != nil {
		return nil, s.storeErr(err, "load progress")
	}

	summary := &progressdomain.StreakSummary{
		Current:        streak.Walk(days, today),
		Today:          today,
		CompletedToday: len(days) > 0 && days[0] == today,
	}
	if progress != nil {
		summary.Longest = progress.LongestStreak
	}
	if summary.Current > summary.Longest {
		summary.Longest = summary.Current
	}
	return summary, nil
}

func (s *Service) History(ctx context.Context, userID string, days int) ([]progressdomain.StreakSnapshot, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, progressdomain.ErrInvalidUser
	}
	if days == 0 {
		days = progressdomain.DefaultHistoryDays
	}
	if days < 0 || days > progressdomain.MaxHistoryDays {
		return nil, progressdomain.ErrInvalidDays
	}

	today := s.calendar.Today()
	from, err := clock.AddDays(today, -(days - 1))
	if err != nil {
		return nil, err
	}
	snapshots, err := s.repo.ListSnapshots(ctx, s.db, userID, from, today)
	if err != nil {
		return nil, s.storeErr(err, "list snapshots")
	}
	if snapshots == nil {
		snapshots = []progressdomain.StreakSnapshot{}
	}
	return snapshots, nil
}

func (s *Service) Progress(ctx context.Context, userID string) (*progressdomain.ProgressResponse, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, progressdomain.ErrInvalidUser
	}
	progress, err := s.repo.FindProgress(ctx, s.db, userID)
	if err != nil {
		return nil, s.storeErr(err, "load progress")
	}

	rules := s.gamification.Get()
	resp := &progressdomain.ProgressResponse{UserID: userID, Level: 1}
	if progress != nil {
		resp.XP = progress.XP
		resp.Level = progress.Level
		resp.LongestStreak = progress.LongestStreak
	}
	if rules.XPPerLevel > 0 {
		resp.NextLevelXP = int64(resp.Level) * int64(rules.XPPerLevel)
	}
	return resp, nil
}

func (s *Service) Achievements(ctx context.Context, userID string) ([]progressdomain.Achievement, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, progressdomain.ErrInvalidUser
	}
	items, err := s.repo.ListAchievements(ctx, s.db, userID)
	if err != nil {
		return nil, s.storeErr(err, "list achievements")
	}
	if items == nil {
		items = []progressdomain.Achievement{}
	}
	return items, nil
}

func (s *Service) GlobalLeaderboard(ctx context.Context, limit int) ([]progressdomain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = progressdomain.DefaultLeaderboardLimit
	}
	if limit > progressdomain.MaxLeaderboardLimit {
		limit = progressdomain.MaxLeaderboardLimit
	}

	rows, err := s.repo.TopByXP(ctx, s.db, limit)
	if err != nil {
		return nil, s.storeErr(err, "load leaderboard")
	}
	entries := make([]progressdomain.LeaderboardEntry, 0, len(rows))
	for i, row := range rows {
		entries = append(entries, progressdomain.LeaderboardEntry{
			Rank:          i + 1,
			UserID:        row.UserID,
			XP:            row.XP,
			Level:         row.Level,
			LongestStreak: row.LongestStreak,
		})
	}
	return entries, nil
}

func (s *Service) storeErr(err error, op string) error {
	switch {
	case errors.Is(err, progressdomain.ErrNotOwner),
		errors.Is(err, progressdomain.ErrNotFound),
		errors.Is(err, progressdomain.ErrAlreadyRecordedToday):
		return err
	case db.IsUnavailableErr(err):
		s.log.Error(op+" failed, store unavailable", zap.Error(err))
		return fmt.Errorf("%w: %v", progressdomain.ErrStoreUnavailable, err)
	default:
		s.log.Error(op+" failed", zap.Error(err))
		return err
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, progressdomain.ErrAlreadyRecordedToday):
		return "already_recorded"
	case errors.Is(err, progressdomain.ErrNotOwner):
		return "not_owner"
	case errors.Is(err, progressdomain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

