package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/WolVesz/oic-devops/pkg/oic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(calls, 1)

		assert.Equal(t, "/oauth2/v1/token", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		username, password, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client-id", username)
		assert.Equal(t, "client-secret", password)

		err := r.ParseForm()
		assert.NoError(t, err)
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		assert.Equal(t, "urn:opc:resource:consumer::all", r.Form.Get("scope"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": fmt.Sprintf("token-%d", n),
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(server.Close)

	return server
}

func newTestManager(url string) *OAuth2TokenManager {
	return NewOAuth2TokenManager(&OAuth2Config{
		TokenURL:     url + "/oauth2/v1/token",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Scope:        "urn:opc:resource:consumer::all",
	})
}

func TestOAuth2TokenManager_GetToken(t *testing.T) {
	t.Parallel()

	t.Run("exchanges on first use and reuses afterwards", func(t *testing.T) {
		t.Parallel()

		var calls int32

		server := tokenServer(t, &calls)
		manager := newTestManager(server.URL)

		token, err := manager.GetToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "token-1", token)

		token, err = manager.GetToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "token-1", token)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		assert.False(t, manager.Token().ObtainedAt.IsZero())
	})

	t.Run("seeded token is used without exchange", func(t *testing.T) {
		t.Parallel()

		manager := NewOAuth2TokenManager(&OAuth2Config{})
		manager.SetToken(&Token{AccessToken: "seeded"})

		token, err := manager.GetToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "seeded", token)
		assert.Equal(t, 0, manager.Exchanges())
	})

	t.Run("no credentials available", func(t *testing.T) {
		t.Parallel()

		manager := NewOAuth2TokenManager(&OAuth2Config{TokenURL: "http://localhost/token"})

		_, err := manager.GetToken(context.Background())
		require.Error(t, err)
		assert.True(t, oic.IsUnauthorized(err))
	})
}

func TestOAuth2TokenManager_ExchangeFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "non-200", status: http.StatusUnauthorized, body: `{"error":"invalid_client"}`},
		{name: "missing access_token", status: http.StatusOK, body: `{"token_type":"Bearer"}`, wantErr: oic.ErrNoTokenInResponse},
		{name: "malformed body", status: http.StatusOK, body: `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestManager(server.URL).RefreshToken(context.Background(), "")
			require.Error(t, err)

			var authErr *oic.AuthenticationError
			require.ErrorAs(t, err, &authErr)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestOAuth2TokenManager_RefreshToken(t *testing.T) {
	t.Parallel()

	var calls int32

	server := tokenServer(t, &calls)
	manager := newTestManager(server.URL)

	first, err := manager.GetToken(context.Background())
	require.NoError(t, err)

	second, err := manager.RefreshToken(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, "token-2", second)

	// A caller still holding the first token gets the replacement for free.
	third, err := manager.RefreshToken(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, "token-2", third)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOAuth2TokenManager_SingleFlightRefresh(t *testing.T) {
	t.Parallel()

	var calls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := atomic.AddInt32(&calls, 1)

		time.Sleep(20 * time.Millisecond)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": fmt.Sprintf("token-%d", n)})
	}))
	defer server.Close()

	manager := NewOAuth2TokenManager(&OAuth2Config{
		TokenURL:     server.URL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	})
	manager.SetToken(&Token{AccessToken: "stale"})

	var waitGroup sync.WaitGroup

	tokens := make([]string, 10)

	for i := range tokens {
		waitGroup.Add(1)

		go func(i int) {
			defer waitGroup.Done()

			token, err := manager.RefreshToken(context.Background(), "stale")
			assert.NoError(t, err)

			tokens[i] = token
		}(i)
	}

	waitGroup.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, manager.Exchanges())

	for _, token := range tokens {
		assert.Equal(t, "token-1", token)
	}
}

type memoryPersister struct {
	mu     sync.Mutex
	saved  map[string]*Token
	failed bool
}

func (p *memoryPersister) SaveToken(profile string, token *Token) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failed {
		return errors.New("disk full")
	}

	if p.saved == nil {
		p.saved = map[string]*Token{}
	}

	p.saved[profile] = token

	return nil
}

func TestConfigTokenManager_PersistsExchangedTokens(t *testing.T) {
	t.Parallel()

	var calls int32

	server := tokenServer(t, &calls)
	persister := &memoryPersister{}

	manager := NewConfigTokenManager(&OAuth2Config{
		TokenURL:     server.URL + "/oauth2/v1/token",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Scope:        "urn:opc:resource:consumer::all",
	}, persister, "dev", &Token{AccessToken: "cached"})

	token, err := manager.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached", token)
	assert.Empty(t, persister.saved)

	token, err = manager.RefreshToken(context.Background(), "cached")
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)
	require.Contains(t, persister.saved, "dev")
	assert.Equal(t, "token-1", persister.saved["dev"].AccessToken)
}

func TestConfigTokenManager_PersistFailureDoesNotFailRequest(t *testing.T) {
	t.Parallel()

	var calls int32

	server := tokenServer(t, &calls)

	var reported error

	manager := NewConfigTokenManager(&OAuth2Config{
		TokenURL:     server.URL + "/oauth2/v1/token",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Scope:        "urn:opc:resource:consumer::all",
	}, &memoryPersister{failed: true}, "dev", nil)
	manager.OnPersistError(func(err error) { reported = err })

	token, err := manager.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)
	require.Error(t, reported)
	assert.Contains(t, reported.Error(), "disk full")
}

func TestStaticTokenManager(t *testing.T) {
	t.Parallel()

	manager := NewStaticTokenManager("fixed")

	token, err := manager.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fixed", token)

	_, err = manager.RefreshToken(context.Background(), "fixed")
	require.ErrorIs(t, err, oic.ErrStaticTokenCannotRefresh)
	assert.True(t, oic.IsUnauthorized(err))
}
