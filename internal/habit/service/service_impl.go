package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/goalforge/internal/clock"
	habitdomain "github.com/smallbiznis/goalforge/internal/habit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  habitdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  habitdomain.Repository
}

func New(p Params) habitdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("habit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, userID string, req habitdomain.CreateRequest) (*habitdomain.Response, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, habitdomain.ErrInvalidUser
	}

	title := strings.TrimSpace(req.Title)
	if title == "" || utf8.RuneCountInString(title) > habitdomain.MaxTitleLength {
		return nil, habitdomain.ErrInvalidTitle
	}

	category := strings.ToLower(strings.TrimSpace(req.Category))
	if category == "" {
		category = habitdomain.DefaultCategory
	}
	if len(category) > 64 {
		return nil, habitdomain.ErrInvalidCategory
	}

	metadata := datatypes.JSONMap{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	h := &habitdomain.Habit{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Title:     title,
		Category:  category,
		Metadata:  metadata,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, s.db, h); err != nil {
		s.log.Error("insert habit failed", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	return toResponse(h), nil
}

func (s *Service) List(ctx context.Context, userID string) ([]habitdomain.Response, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, habitdomain.ErrInvalidUser
	}

	items, err := s.repo.ListByUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	resp := make([]habitdomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, *toResponse(&items[i]))
	}
	return resp, nil
}

// Get returns the caller's own live habit. Foreign and deleted habits are not found.
func (s *Service) Get(ctx context.Context, userID, id string) (*habitdomain.Response, error) {
	habitID, err := habitdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}

	item, err := s.repo.FindByID(ctx, s.db, habitID)
	if err != nil {
		return nil, err
	}
	if item == nil || item.Deleted() || item.UserID != strings.TrimSpace(userID) {
		return nil, habitdomain.ErrNotFound
	}
	return toResponse(item), nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	habitID, err := habitdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return err
	}

	deleted, err := s.repo.SoftDelete(ctx, s.db, strings.TrimSpace(userID), habitID, s.clock.Now().UTC())
	if err != nil {
		return err
	}
	if !deleted {
		return habitdomain.ErrNotFound
	}
	return nil
}

func toResponse(h *habitdomain.Habit) *habitdomain.Response {
	var metadata map[string]any
	if len(h.Metadata) > 0 {
		metadata = map[string]any(h.Metadata)
	}
	return &habitdomain.Response{
		ID:        h.ID.String(),
		Title:     h.Title,
		Category:  h.Category,
		Metadata:  metadata,
		CreatedAt: h.CreatedAt,
	}
}
