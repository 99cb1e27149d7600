package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/goalforge/internal/clock"
	habitdomain "github.com/smallbiznis/goalforge/internal/habit/domain"
	"github.com/smallbiznis/goalforge/internal/habit/repository"
	"github.com/smallbiznis/goalforge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var created = time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)

func newService(t *testing.T) (habitdomain.Service, *clock.FakeClock) {
	t.Helper()
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	fc := clock.NewFakeClock(created)

	svc := New(Params{
		DB:    testutil.NewDB(t),
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fc,
		Repo:  repository.Provide(),
	})
	return svc, fc
}

func TestCreateNormalizesInput(t *testing.T) {
	svc, _ := newService(t)

	resp, err := svc.Create(context.Background(), " alice ", habitdomain.CreateRequest{
		Title:    "  Morning run ",
		Category: " Fitness ",
		Metadata: map[string]any{"target_km": float64(5)},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "Morning run", resp.Title)
	assert.Equal(t, "fitness", resp.Category)
	assert.Equal(t, float64(5), resp.Metadata["target_km"])
	assert.True(t, created.Equal(resp.CreatedAt))

	got, err := svc.Get(context.Background(), "alice", resp.ID)
	require.NoError(t, err)
	assert.Equal(t, resp.ID, got.ID)
	assert.Equal(t, "fitness", got.Category)
}

func TestCreateDefaultsCategory(t *testing.T) {
	svc, _ := newService(t)

	resp, err := svc.Create(context.Background(), "alice", habitdomain.CreateRequest{Title: "Water"})
	require.NoError(t, err)
	assert.Equal(t, habitdomain.DefaultCategory, resp.Category)
	assert.Nil(t, resp.Metadata)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		userID string
		req    habitdomain.CreateRequest
		want   error
	}{
		{"missing user", "  ", habitdomain.CreateRequest{Title: "Read"}, habitdomain.ErrInvalidUser},
		{"blank title", "alice", habitdomain.CreateRequest{Title: "   "}, habitdomain.ErrInvalidTitle},
		{"long title", "alice", habitdomain.CreateRequest{Title: strings.Repeat("a", habitdomain.MaxTitleLength+1)}, habitdomain.ErrInvalidTitle},
		{"long category", "alice", habitdomain.CreateRequest{Title: "Read", Category: strings.Repeat("c", 65)}, habitdomain.ErrInvalidCategory},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.userID, tc.req)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestListReturnsOwnLiveHabitsInCreationOrder(t *testing.T) {
	svc, fc := newService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, "alice", habitdomain.CreateRequest{Title: "Stretch"})
	require.NoError(t, err)
	fc.Advance(time.Minute)
	second, err := svc.Create(ctx, "alice", habitdomain.CreateRequest{Title: "Journal"})
	require.NoError(t, err)
	fc.Advance(time.Minute)
	dropped, err := svc.Create(ctx, "alice", habitdomain.CreateRequest{Title: "Meditate"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "bob", habitdomain.CreateRequest{Title: "Guitar"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "alice", dropped.ID))

	items, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, first.ID, items[0].ID)
	assert.Equal(t, second.ID, items[1].ID)
}

func TestGetHidesForeignAndDeletedHabits(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	resp, err := svc.Create(ctx, "alice", habitdomain.CreateRequest{Title: "Stretch"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, "bob", resp.ID)
	require.ErrorIs(t, err, habitdomain.ErrNotFound)

	require.NoError(t, svc.Delete(ctx, "alice", resp.ID))
	_, err = svc.Get(ctx, "alice", resp.ID)
	require.ErrorIs(t, err, habitdomain.ErrNotFound)

	_, err = svc.Get(ctx, "alice", "not-a-number")
	require.ErrorIs(t, err, habitdomain.ErrInvalidID)
}

func TestDeleteIsOwnerOnlyAndNotRepeatable(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	resp, err := svc.Create(ctx, "alice", habitdomain.CreateRequest{Title: "Stretch"})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(ctx, "bob", resp.ID), habitdomain.ErrNotFound)
	require.NoError(t, svc.Delete(ctx, "alice", resp.ID))
	require.ErrorIs(t, svc.Delete(ctx, "alice", resp.ID), habitdomain.ErrNotFound)
}
