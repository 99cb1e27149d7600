package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	challengedomain "github.com/smallbiznis/goalforge/internal/challenge/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() challengedomain.Repository {
	return &repo{}
}

const challengeColumns = `id, creator_id, title, slug, description, goal_type, goal_target,
	start_date, end_date, status, created_at, updated_at`

func (r *repo) InsertChallenge(ctx context.Context, db *gorm.DB, c *challengedomain.Challenge) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO challenges (`+challengeColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.CreatorID,
		c.Title,
		c.Slug,
		c.Description,
		c.GoalType,
		c.GoalTarget,
		c.StartDate,
		c.EndDate,
		c.Status,
		c.CreatedAt,
		c.UpdatedAt,
	).Error
}

func (r *repo) FindChallenge(ctx context.Context, db *gorm.DB, id snowflake.ID) (*challengedomain.Challenge, error) {
	var challenge challengedomain.Challenge
	err := db.WithContext(ctx).Raw(
		`SELECT `+challengeColumns+` FROM challenges WHERE id = ?`,
		id,
	).Scan(&challenge).Error
	if err != nil {
		return nil, err
	}
	if challenge.ID == 0 {
		return nil, nil
	}
	return &challenge, nil
}

func (r *repo) ListForUser(ctx context.Context, db *gorm.DB, userID string) ([]challengedomain.Challenge, error) {
	var challenges []challengedomain.Challenge
	err := db.WithContext(ctx).Raw(
		`SELECT c.id, c.creator_id, c.title, c.slug, c.description, c.goal_type, c.goal_target,
		        c.start_date, c.end_date, c.status, c.created_at, c.updated_at
		 FROM challenges c
		 JOIN challenge_participants p ON p.challenge_id = c.id
		 WHERE p.user_id = ?
		 ORDER BY c.created_at DESC, c.id DESC`,
		userID,
	).Scan(&challenges).Error
	if err != nil {
		return nil, err
	}
	return challenges, nil
}

func (r *repo) TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status challengedomain.Status, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE challenges SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		status,
		at,
		id,
		challengedomain.StatusActive,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) CompleteEnded(ctx context.Context, db *gorm.DB, today string, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE challenges SET status = ?, updated_at = ?
		 WHERE status = ? AND end_date < ?`,
		challengedomain.StatusCompleted,
		at,
		challengedomain.StatusActive,
		today,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) ActiveIDsForUser(ctx context.Context, db *gorm.DB, userID, today string) ([]snowflake.ID, error) {
	var raw []int64
	err := db.WithContext(ctx).Raw(
		`SELECT c.id FROM challenges c
		 JOIN challenge_participants p ON p.challenge_id = c.id
		 WHERE p.user_id = ? AND c.status = ? AND c.end_date >= ?
		 ORDER BY c.id ASC`,
		userID,
		challengedomain.StatusActive,
		today,
	).Scan(&raw).Error
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, snowflake.ID(id))
	}
	return ids, nil
}

func (r *repo) InsertParticipant(ctx context.Context, db *gorm.DB, p *challengedomain.Participant) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO challenge_participants (id, challenge_id, user_id, score, joined_at)
		 VALUES (?, ?, ?, ?, ?)`,
		p.ID,
		p.ChallengeID,
		p.UserID,
		p.Score,
		p.JoinedAt,
	).Error
}

func (r *repo) FindParticipant(ctx context.Context, db *gorm.DB, challengeID snowflake.ID, userID string) (*challengedomain.Participant, error) {
	var participant challengedomain.Participant
	err := db.WithContext(ctx).Raw(
		`SELECT id, challenge_id, user_id, score, joined_at
		 FROM challenge_participants
		 WHERE challenge_id = ? AND user_id = ?`,
		challengeID,
		userID,
	).Scan(&participant).Error
	if err != nil {
		return nil, err
	}
	if participant.ID == 0 {
		return nil, nil
	}
	return &participant, nil
}

func (r *repo) ListParticipants(ctx context.Context, db *gorm.DB, challengeID snowflake.ID) ([]challengedomain.Participant, error) {
	var participants []challengedomain.Participant
	err := db.WithContext(ctx).Raw(
		`SELECT id, challenge_id, user_id, score, joined_at
		 FROM challenge_participants
		 WHERE challenge_id = ?
		 ORDER BY score DESC, id ASC`,
		challengeID,
	).Scan(&participants).Error
	if err != nil {
		return nil, err
	}
	return participants, nil
}

func (r *repo) UpdateScore(ctx context.Context, db *gorm.DB, challengeID snowflake.ID, userID string, score int64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE challenge_participants SET score = ?
		 WHERE challenge_id = ? AND user_id = ?`,
		score,
		challengeID,
		userID,
	).Error
}

func (r *repo) InsertMessage(ctx context.Context, db *gorm.DB, m *challengedomain.Message) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO challenge_messages (id, challenge_id, user_id, body, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.ID,
		m.ChallengeID,
		m.UserID,
		m.Body,
		m.CreatedAt,
	).Error
}

func (r *repo) ListMessages(ctx context.Context, db *gorm.DB, challengeID snowflake.ID, before *snowflake.ID, limit int) ([]challengedomain.Message, error) {
	query := `SELECT id, challenge_id, user_id, body, created_at
		 FROM challenge_messages
		 WHERE challenge_id = ?`
	args := []any{challengeID}
	if before != nil {
		query += ` AND id < ?`
		args = append(args, *before)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	var messages []challengedomain.Message
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}
