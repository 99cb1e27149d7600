package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/goalforge/internal/auth/domain"
	"github.com/smallbiznis/goalforge/internal/clock"
	"github.com/smallbiznis/goalforge/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Clock clock.Clock
}

// JWTProvider validates HS256 tokens whose subject is the user id.
type JWTProvider struct {
	secret []byte
	issuer string
	clock  clock.Clock
	log    *zap.Logger
}

func New(p Params) *JWTProvider {
	return NewJWTProvider(p.Cfg.AuthJWTSecret, p.Cfg.AuthJWTIssuer, p.Clock, p.Log)
}

func NewJWTProvider(secret, issuer string, c clock.Clock, log *zap.Logger) *JWTProvider {
	if c == nil {
		c = clock.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &JWTProvider{
		secret: []byte(strings.TrimSpace(secret)),
		issuer: strings.TrimSpace(issuer),
		clock:  c,
		log:    log.Named("auth.jwt"),
	}
}

func (p *JWTProvider) Validate(ctx context.Context, token string) (string, error) {
	if len(p.secret) == 0 {
		return "", domain.ErrNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", domain.ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", domain.ErrTokenExpired
		}
		p.log.Debug("token rejected", zap.Error(err))
		return "", domain.ErrInvalidToken
	}
	if !parsed.Valid {
		return "", domain.ErrInvalidToken
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", domain.ErrInvalidSubject
	}
	return subject, nil
}

func (p *JWTProvider) Issue(userID string, ttl time.Duration) (string, error) {
	if len(p.secret) == 0 {
		return "", domain.ErrNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", domain.ErrInvalidSubject
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	now := p.clock.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    p.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

var (
	_ domain.Provider = (*JWTProvider)(nil)
	_ domain.Issuer   = (*JWTProvider)(nil)
)
