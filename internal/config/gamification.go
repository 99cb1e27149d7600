package config

import (
	"errors"
	"log"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// GamificationConfig tunes XP awards and streak milestones.
type GamificationConfig struct {
	BaseXP         int   `mapstructure:"baseXp"`
	StreakBonusXP  int   `mapstructure:"streakBonusXp"`
	MaxStreakBonus int   `mapstructure:"maxStreakBonus"`
	XPPerLevel     int   `mapstructure:"xpPerLevel"`
	Milestones     []int `mapstructure:"milestones"`
}

func DefaultGamificationConfig() GamificationConfig {
	return GamificationConfig{
		BaseXP:         10,
		StreakBonusXP:  2,
		MaxStreakBonus: 10,
		XPPerLevel:     100,
		Milestones:     []int{3, 7, 30, 100},
	}
}

// XPForStreak returns the XP earned by a completion that produced the given streak.
func (c GamificationConfig) XPForStreak(streak int) int {
	bonus := streak - 1
	if bonus < 0 {
		bonus = 0
	}
	if bonus > c.MaxStreakBonus {
		bonus = c.MaxStreakBonus
	}
	return c.BaseXP + c.StreakBonusXP*bonus
}

func (c GamificationConfig) LevelForXP(xp int64) int {
	if c.XPPerLevel <= 0 || xp <= 0 {
		return 1
	}
	return 1 + int(xp/int64(c.XPPerLevel))
}

func (c GamificationConfig) IsMilestone(streak int) bool {
	for _, m := range c.Milestones {
		if m == streak {
			return true
		}
	}
	return false
}

type GamificationConfigHolder struct {
	current atomic.Value // holds GamificationConfig
}

// NewStaticGamificationConfigHolder returns a holder that never reloads.
func NewStaticGamificationConfigHolder(cfg GamificationConfig) *GamificationConfigHolder {
	holder := &GamificationConfigHolder{}
	holder.current.Store(normalizeGamificationConfig(cfg))
	return holder
}

func NewGamificationConfigHolder() (*GamificationConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("gamification")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/goalforge")
	v.AddConfigPath(".")

	v.SetEnvPrefix("GOALFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultGamificationConfig()
	v.SetDefault("gamification.baseXp", defaults.BaseXP)
	v.SetDefault("gamification.streakBonusXp", defaults.StreakBonusXP)
	v.SetDefault("gamification.maxStreakBonus", defaults.MaxStreakBonus)
	v.SetDefault("gamification.xpPerLevel", defaults.XPPerLevel)
	v.SetDefault("gamification.milestones", defaults.Milestones)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg GamificationConfig
	if err := v.UnmarshalKey("gamification", &cfg); err != nil {
		return nil, err
	}
	if err := validateGamificationConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticGamificationConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated GamificationConfig
		if err := v.UnmarshalKey("gamification", &updated); err != nil {
			log.Printf("[gamification-config] reload failed: %v", err)
			return
		}
		if err := validateGamificationConfig(updated); err != nil {
			log.Printf("[gamification-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(normalizeGamificationConfig(updated))
		log.Printf("[gamification-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *GamificationConfigHolder) Get() GamificationConfig {
	if h == nil {
		return DefaultGamificationConfig()
	}
	cfg, ok := h.current.Load().(GamificationConfig)
	if !ok {
		return DefaultGamificationConfig()
	}
	return cfg
}

func validateGamificationConfig(cfg GamificationConfig) error {
	if cfg.BaseXP <= 0 {
		return errors.New("gamification.baseXp must be positive")
	}
	if cfg.StreakBonusXP < 0 || cfg.MaxStreakBonus < 0 {
		return errors.New("gamification streak bonus cannot be negative")
	}
	if cfg.XPPerLevel <= 0 {
		return errors.New("gamification.xpPerLevel must be positive")
	}
	return nil
}

func normalizeGamificationConfig(cfg GamificationConfig) GamificationConfig {
	milestones := make([]int, 0, len(cfg.Milestones))
	for _, m := range cfg.Milestones {
		if m > 0 {
			milestones = append(milestones, m)
		}
	}
	sort.Ints(milestones)
	cfg.Milestones = milestones
	return cfg
}
