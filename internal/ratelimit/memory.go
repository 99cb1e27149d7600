package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/goalforge/internal/clock"
)

// MemoryWindow is the single-process sliding window used when redis is not configured.
type MemoryWindow struct {
	mu    sync.Mutex
	hits  map[string][]time.Time
	clock clock.Clock
}

func NewMemoryWindow(c clock.Clock) *MemoryWindow {
	if c == nil {
		c = clock.SystemClock{}
	}
	return &MemoryWindow{
		hits:  make(map[string][]time.Time),
		clock: c,
	}
}

func (m *MemoryWindow) Allow(_ context.Context, key string, limit int, window time.Duration) (*Result, error) {
	if err := validate(key, limit, window); err != nil {
		return nil, err
	}

	now := m.clock.Now()
	cutoff := now.Add(-window)

	m.mu.Lock()
	defer m.mu.Unlock()

	hits := m.hits[key]
	kept := hits[:0]
	for _, at := range hits {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}

	if len(kept) >= limit {
		m.hits[key] = kept
		return &Result{
			Allowed:    false,
			Limit:      limit,
			RetryAfter: kept[0].Add(window).Sub(now),
		}, nil
	}

	kept = append(kept, now)
	m.hits[key] = kept
	return &Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(kept),
	}, nil
}
