package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/WolVesz/oic-devops/internal/auth"
	"github.com/WolVesz/oic-devops/pkg/oic"
	"github.com/stretchr/testify/require"
)

const testIdentityDomain = "test-domain"

// NewTestClient creates a client against handler authenticated with a static token.
func NewTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewWithTokenManager(&oic.Config{
		BaseURL:        server.URL,
		IdentityDomain: testIdentityDomain,
	}, auth.NewStaticTokenManager("test-token"))
	require.NoError(t, err)

	return client
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeBody(t *testing.T, r *http.Request) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}

	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

	return body
}
