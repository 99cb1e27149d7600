package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/goalforge/internal/auth/domain"
	"github.com/smallbiznis/goalforge/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestValidate(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	provider := NewJWTProvider("test-secret", "goalforge", fake, zap.NewNop())

	valid, err := provider.Issue("user-1", time.Hour)
	require.NoError(t, err)

	otherSecret, err := NewJWTProvider("other", "goalforge", fake, zap.NewNop()).Issue("user-1", time.Hour)
	require.NoError(t, err)

	wrongIssuer, err := NewJWTProvider("test-secret", "someone-else", fake, zap.NewNop()).Issue("user-1", time.Hour)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "goalforge",
		ExpiresAt: jwt.NewNumericDate(fake.Now().Add(time.Hour)),
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantID  string
		wantErr error
	}{
		{name: "valid", token: valid, wantID: "user-1"},
		{name: "bearer whitespace", token: "  " + valid + " ", wantID: "user-1"},
		{name: "empty", token: "", wantErr: domain.ErrMissingToken},
		{name: "garbage", token: "not-a-jwt", wantErr: domain.ErrInvalidToken},
		{name: "wrong secret", token: otherSecret, wantErr: domain.ErrInvalidToken},
		{name: "wrong issuer", token: wrongIssuer, wantErr: domain.ErrInvalidToken},
		{name: "alg none", token: unsigned, wantErr: domain.ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID, err := provider.Validate(context.Background(), tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, userID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, userID)
		})
	}
}

func TestValidateExpired(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	provider := NewJWTProvider("test-secret", "goalforge", fake, zap.NewNop())

	token, err := provider.Issue("user-1", time.Minute)
	require.NoError(t, err)

	fake.Advance(2 * time.Minute)
	_, err = provider.Validate(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
}

func TestValidateWithoutSecretFailsClosed(t *testing.T) {
	provider := NewJWTProvider("", "", nil, nil)
	_, err := provider.Validate(context.Background(), "anything")
	assert.ErrorIs(t, err, domain.ErrNotConfigured)

	_, err = provider.Issue("user-1", time.Hour)
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}
