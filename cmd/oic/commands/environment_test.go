package commands

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

// newInstanceServer serves one connection C1 and no integrations.
func newInstanceServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer static-token", r.Header.Get("Authorization"))
		assert.Equal(t, "idcs-test", r.URL.Query().Get(constants.QueryIntegrationInstance))

		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case constants.APIPathConnections + "/C1":
			_, _ = w.Write([]byte(`{"id":"C1","name":"DEV_REST_ORDERS","status":"CONFIGURED"}`))
		case constants.APIPathIntegrations:
			_, _ = w.Write([]byte(`{"items":[],"hasMore":false,"totalResults":0}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"title":"Not Found","detail":"no such resource"}`))
		}
	}))
	t.Cleanup(server.Close)

	return server
}

func useInstance(t *testing.T, server *httptest.Server) {
	t.Helper()

	useConfigFile(t, strings.Join([]string{
		"current_profile: test",
		"profiles:",
		"  test:",
		"    base_url: " + server.URL,
		"    identity_domain: idcs-test",
		"    access_token: static-token",
		"    retry_max: 0",
		"",
	}, "\n"))
}

func TestBuildConfig(t *testing.T) {
	retries := 1
	config, err := buildConfig(&Profile{
		BaseURL:        "https://oic.example.com",
		IdentityDomain: "idcs-1",
		ClientID:       "id",
		ClientSecret:   "secret",
		Timeout:        "45s",
		RetryMax:       &retries,
	})
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, config.HTTPTimeout)
	assert.Equal(t, 1, config.RetryMax)
	assert.Equal(t, constants.DefaultUserAgent, config.UserAgent)
	assert.NotNil(t, config.Logger)

	config, err = buildConfig(&Profile{BaseURL: "https://oic.example.com"})
	require.NoError(t, err)
	assert.Equal(t, constants.DefaultHTTPTimeout, config.HTTPTimeout)
	assert.Equal(t, constants.DefaultRetryMax, config.RetryMax)

	_, err = buildConfig(&Profile{Timeout: "soon"})
	require.Error(t, err)
}

func TestCachedToken(t *testing.T) {
	assert.Nil(t, cachedToken(&Profile{}))

	token := cachedToken(&Profile{CachedToken: "abc", TokenObtainedAt: "2024-05-01T12:00:00Z"})
	require.NotNil(t, token)
	assert.Equal(t, "abc", token.AccessToken)
	assert.Equal(t, 2024, token.ObtainedAt.Year())
}

func TestEnvironmentDeps(t *testing.T) {
	useConfigFile(t, twoProfiles)
	viper.Set("concurrency", 4)

	env, err := openEnvironment("prod", nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = env.Close() })

	deps, err := env.deps()
	require.NoError(t, err)

	assert.Equal(t, 4, deps.Concurrency)
	assert.Equal(t, 2*time.Second, deps.PollInterval)
	assert.Equal(t, 4, deps.PollAttempts)
	assert.NotNil(t, deps.API)
}

func TestRunWorkflow(t *testing.T) {
	t.Run("renders success", func(t *testing.T) {
		useInstance(t, newInstanceServer(t))

		cmd := NewConnectionsCommand()
		cmd.SetArgs([]string{"dependents", "C1"})

		var out bytes.Buffer
		cmd.SetOut(&out)

		require.NoError(t, cmd.Execute())
		assert.Contains(t, out.String(), "No integrations found that depend on connection DEV_REST_ORDERS")
		assert.Contains(t, out.String(), "C1")
	})

	t.Run("failed workflow returns an error", func(t *testing.T) {
		useInstance(t, newInstanceServer(t))
		viper.Set("output", "json")

		cmd := NewConnectionsCommand()
		cmd.SetArgs([]string{"dependents", "C9"})

		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})

		err := cmd.Execute()
		require.ErrorIs(t, err, constants.ErrWorkflowFailed)
		assert.NotContains(t, out.String(), "Usage:")

		var result oic.WorkflowResult
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		assert.False(t, result.Success)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "Failed to get connection C9", result.Errors[0].Message)
	})

	t.Run("writes metrics file", func(t *testing.T) {
		useInstance(t, newInstanceServer(t))

		metricsFile := filepath.Join(t.TempDir(), "oic.prom")
		viper.Set("metrics-file", metricsFile)

		cmd := NewConnectionsCommand()
		cmd.SetArgs([]string{"dependents", "C1"})
		cmd.SetOut(&bytes.Buffer{})

		require.NoError(t, cmd.Execute())

		data, err := os.ReadFile(metricsFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "oic_devops_workflows_completed_total")
	})

	t.Run("promote needs a target profile", func(t *testing.T) {
		useInstance(t, newInstanceServer(t))

		cmd := NewDeployCommand()
		cmd.SetArgs([]string{"promote", "ORDERS|01.00.0000", "--target-profile", "prod"})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})

		require.ErrorIs(t, cmd.Execute(), constants.ErrProfileNotFound)
	})
}

func TestResourcesCommands(t *testing.T) {
	t.Run("ping", func(t *testing.T) {
		server := newInstanceServer(t)
		useInstance(t, server)

		cmd := NewResourcesCommand()
		cmd.SetArgs([]string{"ping"})

		var out bytes.Buffer
		cmd.SetOut(&out)

		require.NoError(t, cmd.Execute())
		assert.Equal(t, "Connected to "+server.URL+" (profile test)\n", out.String())
	})

	t.Run("get", func(t *testing.T) {
		useInstance(t, newInstanceServer(t))

		cmd := NewResourcesCommand()
		cmd.SetArgs([]string{"get", "connection", "C1"})

		var out bytes.Buffer
		cmd.SetOut(&out)

		require.NoError(t, cmd.Execute())
		assert.Contains(t, out.String(), "DEV_REST_ORDERS")
		assert.Contains(t, out.String(), "CONFIGURED")
	})

	t.Run("unknown kind", func(t *testing.T) {
		cmd := NewResourcesCommand()
		cmd.SetArgs([]string{"list", "adapters"})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})

		require.ErrorIs(t, cmd.Execute(), constants.ErrUnsupportedKind)
	})
}
