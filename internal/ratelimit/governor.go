package ratelimit

import (
	"context"
	"errors"
	"time"
)

var ErrRateLimited = errors.New("rate_limited")

// Governor admits or rejects one request against a per-key sliding window.
type Governor interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// LimitError is returned by Limiter when a caller is over budget.
type LimitError struct {
	Endpoint   string
	Limit      int
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return ErrRateLimited.Error()
}

func (e *LimitError) Unwrap() error {
	return ErrRateLimited
}

// RetryAfter extracts the advised wait from a rate limit error, or zero.
func RetryAfter(err error) time.Duration {
	var limitErr *LimitError
	if errors.As(err, &limitErr) {
		return limitErr.RetryAfter
	}
	return 0
}

func validate(key string, limit int, window time.Duration) error {
	if key == "" {
		return errors.New("rate limiter key is empty")
	}
	if limit <= 0 {
		return errors.New("rate limiter limit must be positive")
	}
	if window <= 0 {
		return errors.New("rate limiter window must be positive")
	}
	return nil
}
