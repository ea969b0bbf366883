package auth

import (
	"context"

	"github.com/WolVesz/oic-devops/pkg/oic"
)

// StaticTokenManager serves a token supplied by the user.
type StaticTokenManager struct {
	token string
}

// NewStaticTokenManager wraps token.
func NewStaticTokenManager(token string) *StaticTokenManager {
	return &StaticTokenManager{token: token}
}

// GetToken returns the fixed token.
func (m *StaticTokenManager) GetToken(ctx context.Context) (string, error) {
	return m.token, nil
}

// RefreshToken always fails; a rejected static token cannot be replaced.
func (m *StaticTokenManager) RefreshToken(ctx context.Context, stale string) (string, error) {
	return "", &oic.AuthenticationError{Message: "access token rejected", Err: oic.ErrStaticTokenCannotRefresh}
}
