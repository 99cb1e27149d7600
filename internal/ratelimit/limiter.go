package ratelimit

import (
	"context"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/goalforge/internal/clock"
	"github.com/smallbiznis/goalforge/internal/config"
	"github.com/smallbiznis/goalforge/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	EndpointCompletion = "completion"
	EndpointMessage    = "message"
	EndpointAPI        = "api"

	keyPrefix = "goalforge:rl:"
)

type Rule struct {
	Limit  int
	Window time.Duration
}

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle `optional:"true"`
	Config    config.Config
	Log       *zap.Logger
	Clock     clock.Clock
	Metrics   *metrics.Metrics `optional:"true"`
}

// Limiter applies the configured per-user budgets. A disabled limiter admits everything.
type Limiter struct {
	enabled  bool
	governor Governor
	log      *zap.Logger
	metrics  *metrics.Metrics

	completion Rule
	message    Rule
	api        Rule
}

func NewLimiter(p Params) *Limiter {
	cfg := p.Config.RateLimit
	log := p.Log.Named("ratelimit")
	if !cfg.Enabled {
		log.Info("rate limiting disabled")
		return &Limiter{log: log}
	}

	var governor Governor
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:        addr,
			Password:    strings.TrimSpace(cfg.RedisPassword),
			DB:          cfg.RedisDB,
			DialTimeout: 5 * time.Second,
		})
		if p.Lifecycle != nil {
			p.Lifecycle.Append(fx.Hook{
				OnStop: func(context.Context) error {
					return client.Close()
				},
			})
		}
		governor = NewSlidingWindow(client, p.Clock, keyPrefix)
		log.Info("rate limiting backed by redis", zap.String("addr", addr))
	} else {
		governor = NewMemoryWindow(p.Clock)
		log.Info("rate limiting backed by process memory")
	}

	return NewLimiterWith(governor, cfg, log, p.Metrics)
}

func NewLimiterWith(governor Governor, cfg config.RateLimitConfig, log *zap.Logger, m *metrics.Metrics) *Limiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Limiter{
		enabled:    governor != nil,
		governor:   governor,
		log:        log,
		metrics:    m,
		completion: Rule{Limit: cfg.CompletionLimit, Window: cfg.CompletionWindow},
		message:    Rule{Limit: cfg.MessageLimit, Window: cfg.MessageWindow},
		api:        Rule{Limit: cfg.APILimit, Window: cfg.APIWindow},
	}
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *Limiter) AllowCompletion(ctx context.Context, userID string) error {
	if !l.Enabled() {
		return nil
	}
	return l.check(ctx, EndpointCompletion, userID, l.completion)
}

func (l *Limiter) AllowMessage(ctx context.Context, userID string) error {
	if !l.Enabled() {
		return nil
	}
	return l.check(ctx, EndpointMessage, userID, l.message)
}

func (l *Limiter) AllowAPI(ctx context.Context, userID string) error {
	if !l.Enabled() {
		return nil
	}
	return l.check(ctx, EndpointAPI, userID, l.api)
}

func (l *Limiter) check(ctx context.Context, endpoint, userID string, rule Rule) error {
	if rule.Limit <= 0 || rule.Window <= 0 {
		return nil
	}

	key := endpoint + ":" + strings.TrimSpace(userID)
	res, err := l.governor.Allow(ctx, key, rule.Limit, rule.Window)
	if err != nil {
		// the store being down must not take the product down with it
		l.log.Warn("rate limit check failed, allowing request",
			zap.String("endpoint", endpoint),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		l.metrics.RecordRateLimitAllowed(ctx, endpoint)
		return nil
	}
	if res.Allowed {
		l.metrics.RecordRateLimitAllowed(ctx, endpoint)
		return nil
	}

	l.metrics.RecordRateLimitDenied(ctx, endpoint, "window_exceeded")
	l.log.Debug("rate limited",
		zap.String("endpoint", endpoint),
		zap.String("user_id", userID),
		zap.Duration("retry_after", res.RetryAfter),
	)
	return &LimitError{
		Endpoint:   endpoint,
		Limit:      rule.Limit,
		RetryAfter: res.RetryAfter,
	}
}
