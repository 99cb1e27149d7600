package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/goalforge/internal/clock"
)

const slidingWindowScript = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local count = redis.call("ZCARD", KEYS[1])

if count < limit then
  redis.call("ZADD", KEYS[1], now, ARGV[4])
  redis.call("PEXPIRE", KEYS[1], window)
  return {1, limit - count - 1, 0}
end

local retry = window
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
if oldest[2] ~= nil then
  retry = tonumber(oldest[2]) + window - now
end

-- Return: allowed, remaining, retry_after (milliseconds)
return {0, 0, retry}
`

// SlidingWindow keeps one sorted set of request timestamps per key.
type SlidingWindow struct {
	client redis.Scripter
	script *redis.Script
	clock  clock.Clock
	prefix string
}

func NewSlidingWindow(client redis.Scripter, c clock.Clock, prefix string) *SlidingWindow {
	if client == nil {
		return nil
	}
	if c == nil {
		c = clock.SystemClock{}
	}
	return &SlidingWindow{
		client: client,
		script: redis.NewScript(slidingWindowScript),
		clock:  c,
		prefix: prefix,
	}
}

func (s *SlidingWindow) Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("rate limiter not configured")
	}
	if err := validate(key, limit, window); err != nil {
		return nil, err
	}

	now := s.clock.Now().UnixMilli()
	res, err := s.script.Run(
		ctx,
		s.client,
		[]string{s.prefix + key},
		now,
		window.Milliseconds(),
		limit,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return nil, err
	}
	if len(res) < 3 {
		return nil, errors.New("invalid rate limit script response")
	}

	result := &Result{
		Allowed:   res[0] == 1,
		Limit:     limit,
		Remaining: int(res[1]),
	}
	if !result.Allowed {
		result.RetryAfter = time.Duration(res[2]) * time.Millisecond
	}
	return result, nil
}
