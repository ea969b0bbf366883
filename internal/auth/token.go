// Package auth obtains and replaces the bearer credential used against the
// OIC management API.
package auth

import (
	"sync"
	"time"

	"github.com/WolVesz/oic-devops/pkg/oic"
)

// TokenManager is the credential contract consumed by the dispatcher.
type TokenManager = oic.TokenManager

// Token is an access token as returned by the identity domain token endpoint.
//
// The token carries no expiry handling: it stays in use until the API answers
// 401, at which point it is replaced.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type,omitempty"`
	ExpiresIn   int       `json:"expires_in,omitempty"`
	Scope       string    `json:"scope,omitempty"`
	ObtainedAt  time.Time `json:"obtained_at"`
}

// Valid reports whether the token can be sent at all.
func (t *Token) Valid() bool {
	return t != nil && t.AccessToken != ""
}

// TokenStore holds the single in-memory token.
type TokenStore struct {
	mu    sync.RWMutex
	token *Token
}

// NewTokenStore creates an empty store.
func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

// Get returns the held token, or nil.
func (s *TokenStore) Get() *Token {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token
}

// Set replaces the held token.
func (s *TokenStore) Set(token *Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
}

// Clear drops the held token.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = nil
}
