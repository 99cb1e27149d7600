package notification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogProviderWritesStructuredEntry(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	provider := NewLog(zap.New(core))

	err := provider.Notify(context.Background(), Achievement("u1", "streak_7", "7 day streak", 7))
	require.NoError(t, err)

	entries := logs.FilterMessage("notification").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "u1", fields["user_id"])
	require.Equal(t, KindAchievement, fields["kind"])
	require.Equal(t, "7 day streak", fields["title"])
}

func TestLogProviderRejectsIncompleteNotification(t *testing.T) {
	provider := NewLog(nil)
	require.Error(t, provider.Notify(context.Background(), Notification{Kind: KindAchievement}))
	require.Error(t, provider.Notify(context.Background(), Notification{UserID: "u1"}))
	require.NoError(t, NoOpProvider{}.Notify(context.Background(), Notification{}))
}
