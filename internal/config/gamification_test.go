package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestXPForStreak(t *testing.T) {
	cfg := DefaultGamificationConfig()

	tests := []struct {
		name   string
		streak int
		want   int
	}{
		{name: "first day", streak: 1, want: 10},
		{name: "second day", streak: 2, want: 12},
		{name: "bonus capped", streak: 50, want: 30},
		{name: "zero streak", streak: 0, want: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.XPForStreak(tt.streak))
		})
	}
}

func TestLevelForXP(t *testing.T) {
	cfg := DefaultGamificationConfig()
	assert.Equal(t, 1, cfg.LevelForXP(0))
	assert.Equal(t, 1, cfg.LevelForXP(99))
	assert.Equal(t, 2, cfg.LevelForXP(100))
	assert.Equal(t, 4, cfg.LevelForXP(350))
}

func TestStaticHolderNormalizesMilestones(t *testing.T) {
	holder := NewStaticGamificationConfigHolder(GamificationConfig{
		BaseXP:     5,
		XPPerLevel: 50,
		Milestones: []int{30, -1, 7, 0},
	})

	got := holder.Get()
	assert.Equal(t, []int{7, 30}, got.Milestones)
	assert.True(t, got.IsMilestone(7))
	assert.False(t, got.IsMilestone(3))
}

func TestValidateGamificationConfig(t *testing.T) {
	assert.NoError(t, validateGamificationConfig(DefaultGamificationConfig()))
	assert.Error(t, validateGamificationConfig(GamificationConfig{BaseXP: 0, XPPerLevel: 10}))
	assert.Error(t, validateGamificationConfig(GamificationConfig{BaseXP: 1, XPPerLevel: 0}))
}
