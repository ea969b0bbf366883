package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

// OAuth2Config holds the client-credentials settings of one identity domain.
type OAuth2Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string

	// HTTPClient overrides the client used for the exchange.
	HTTPClient *http.Client
}

// OAuth2TokenManager performs client-credentials exchanges on demand.
//
// Refreshes are single-flight: concurrent callers that saw the same stale
// token share one exchange.
type OAuth2TokenManager struct {
	config     *OAuth2Config
	store      *TokenStore
	httpClient *http.Client

	refreshMu sync.Mutex
	exchanges int
}

// NewOAuth2TokenManager creates a new token manager.
func NewOAuth2TokenManager(config *OAuth2Config) *OAuth2TokenManager {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: constants.ShortHTTPTimeout}
	}

	return &OAuth2TokenManager{
		config:     config,
		store:      NewTokenStore(),
		httpClient: httpClient,
	}
}

// GetToken returns the held token, performing the first exchange if needed.
func (m *OAuth2TokenManager) GetToken(ctx context.Context) (string, error) {
	if token := m.store.Get(); token.Valid() {
		return token.AccessToken, nil
	}

	return m.RefreshToken(ctx, "")
}

// RefreshToken replaces stale with a freshly exchanged token. If another
// caller already replaced stale, the current token is returned as is.
func (m *OAuth2TokenManager) RefreshToken(ctx context.Context, stale string) (string, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	if current := m.store.Get(); current.Valid() && current.AccessToken != stale {
		return current.AccessToken, nil
	}

	token, err := m.exchange(ctx)
	if err != nil {
		return "", err
	}

	m.store.Set(token)

	return token.AccessToken, nil
}

// SetToken seeds the manager with a previously obtained token.
func (m *OAuth2TokenManager) SetToken(token *Token) {
	m.store.Set(token)
}

// Token returns the held token, or nil.
func (m *OAuth2TokenManager) Token() *Token {
	return m.store.Get()
}

// Exchanges returns how many token requests were sent.
func (m *OAuth2TokenManager) Exchanges() int {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	return m.exchanges
}

func (m *OAuth2TokenManager) exchange(ctx context.Context) (*Token, error) {
	if m.config.TokenURL == "" {
		return nil, &oic.AuthenticationError{Message: "no token URL configured"}
	}

	if m.config.ClientID == "" || m.config.ClientSecret == "" {
		return nil, &oic.AuthenticationError{Message: "client id and secret are required"}
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	if m.config.Scope != "" {
		form.Set("scope", m.config.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}

	req.SetBasicAuth(m.config.ClientID, m.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", constants.ContentTypeJSON)

	m.exchanges++

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, &oic.AuthenticationError{Message: "token request failed", Err: err}
	}

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &oic.AuthenticationError{Message: "reading token response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &oic.AuthenticationError{
			Message: fmt.Sprintf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var token Token

	err = json.Unmarshal(body, &token)
	if err != nil {
		return nil, &oic.AuthenticationError{Message: "decoding token response", Err: err}
	}

	if token.AccessToken == "" {
		return nil, &oic.AuthenticationError{Message: "token response rejected", Err: oic.ErrNoTokenInResponse}
	}

	token.ObtainedAt = time.Now().UTC()

	return &token, nil
}
