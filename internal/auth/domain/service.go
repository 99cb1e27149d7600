package domain

import (
	"context"
	"time"
)

// Provider verifies bearer identity tokens. User accounts live outside this service.
type Provider interface {
	Validate(ctx context.Context, token string) (string, error)
}

// Issuer mints tokens for an existing user id. Used by tooling and tests.
type Issuer interface {
	Issue(userID string, ttl time.Duration) (string, error)
}
