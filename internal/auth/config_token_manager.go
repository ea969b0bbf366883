package auth

import (
	"context"
	"errors"
	"fmt"
)

// Static errors for err113 compliance.
var (
	ErrNoConfigPersister = errors.New("no config persister configured")
)

// ConfigPersister stores the last obtained token with the active profile so
// the next run can reuse it until the API rejects it.
type ConfigPersister interface {
	SaveToken(profile string, token *Token) error
}

// ConfigTokenManager wraps OAuth2TokenManager and persists every token it
// exchanges.
type ConfigTokenManager struct {
	oauth2Manager   *OAuth2TokenManager
	configPersister ConfigPersister
	profile         string
	onPersistError  func(error)
}

// NewConfigTokenManager creates a config-persisting token manager. A
// non-empty initialToken is used first.
func NewConfigTokenManager(config *OAuth2Config, persister ConfigPersister, profile string, initialToken *Token) *ConfigTokenManager {
	oauth2Manager := NewOAuth2TokenManager(config)

	if initialToken.Valid() {
		oauth2Manager.SetToken(initialToken)
	}

	return &ConfigTokenManager{
		oauth2Manager:   oauth2Manager,
		configPersister: persister,
		profile:         profile,
		onPersistError:  func(error) {},
	}
}

// OnPersistError registers a callback for failed writes. Persisting never
// fails the request that triggered it.
func (m *ConfigTokenManager) OnPersistError(fn func(error)) {
	if fn != nil {
		m.onPersistError = fn
	}
}

// GetToken returns the held token, exchanging and persisting one if needed.
func (m *ConfigTokenManager) GetToken(ctx context.Context) (string, error) {
	if token := m.oauth2Manager.Token(); token.Valid() {
		return token.AccessToken, nil
	}

	return m.RefreshToken(ctx, "")
}

// RefreshToken forces an exchange unless stale was already replaced.
func (m *ConfigTokenManager) RefreshToken(ctx context.Context, stale string) (string, error) {
	before := m.oauth2Manager.Token()

	token, err := m.oauth2Manager.RefreshToken(ctx, stale)
	if err != nil {
		return "", err
	}

	if current := m.oauth2Manager.Token(); current != before {
		persistErr := m.persistToken(current)
		if persistErr != nil {
			m.onPersistError(persistErr)
		}
	}

	return token, nil
}

// Exchanges returns how many token requests were sent.
func (m *ConfigTokenManager) Exchanges() int {
	return m.oauth2Manager.Exchanges()
}

func (m *ConfigTokenManager) persistToken(token *Token) error {
	if m.configPersister == nil {
		return ErrNoConfigPersister
	}

	err := m.configPersister.SaveToken(m.profile, token)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	return nil
}
