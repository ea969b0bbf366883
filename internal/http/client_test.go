package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	oichttp "github.com/WolVesz/oic-devops/internal/http"
	"github.com/WolVesz/oic-devops/pkg/oic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockTokenManager hands out "token-N" and counts refreshes.
type MockTokenManager struct {
	mu         sync.Mutex
	generation int
	refreshes  int
	refreshErr error
}

func (m *MockTokenManager) GetToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return tokenName(m.generation), nil
}

func (m *MockTokenManager) RefreshToken(ctx context.Context, stale string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refreshes++
	if m.refreshErr != nil {
		return "", m.refreshErr
	}

	m.generation++

	return tokenName(m.generation), nil
}

func tokenName(generation int) string {
	return "token-" + string(rune('0'+generation))
}

// MockLogger for testing.
type MockLogger struct {
	mu   sync.Mutex
	logs []map[string]interface{}
}

func (l *MockLogger) record(level, msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logs = append(l.logs, map[string]interface{}{"level": level, "msg": msg, "fields": fields})
}

func (l *MockLogger) Debug(msg string, fields map[string]interface{}) { l.record("debug", msg, fields) }
func (l *MockLogger) Info(msg string, fields map[string]interface{})  { l.record("info", msg, fields) }
func (l *MockLogger) Warn(msg string, fields map[string]interface{})  { l.record("warn", msg, fields) }
func (l *MockLogger) Error(msg string, fields map[string]interface{}) { l.record("error", msg, fields) }

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_Do(t *testing.T) {
	t.Parallel()

	t.Run("successful request", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "/ic/api/integration/v1/connections", request.URL.Path)
			assert.Equal(t, "GET", request.Method)
			assert.Equal(t, "Bearer token-0", request.Header.Get("Authorization"))
			assert.Equal(t, "application/json", request.Header.Get("Accept"))
			assert.Equal(t, "idcs-123", request.URL.Query().Get("integrationInstance"))
			assert.Equal(t, "oic-devops/1.0", request.Header.Get("User-Agent"))

			_ = json.NewEncoder(writer).Encode(map[string]string{"id": "REST_API", "name": "REST API"})
		}))
		defer server.Close()

		client := oichttp.NewClient(server.URL, &MockTokenManager{}, oichttp.WithIdentityDomain("idcs-123"))

		resp, err := client.Do(context.Background(), &oichttp.Request{
			Method: "GET",
			Path:   "/ic/api/integration/v1/connections",
		})
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, "REST_API", resp.Object().ID())
	})

	t.Run("request with query parameters", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "integrationInstance=idcs-123&limit=50&q=status%3AACTIVATED", request.URL.RawQuery)
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := oichttp.NewClient(server.URL, nil, oichttp.WithIdentityDomain("idcs-123"))

		resp, err := client.Get(context.Background(), "/integrations", url.Values{"limit": {"50"}, "q": {"status:ACTIVATED"}})
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("request with body", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "POST", request.Method)
			assert.Equal(t, "application/json", request.Header.Get("Content-Type"))

			var body map[string]string

			_ = json.NewDecoder(request.Body).Decode(&body)
			assert.Equal(t, "Orders", body["name"])

			writer.WriteHeader(http.StatusCreated)
		}))
		defer server.Close()

		client := oichttp.NewClient(server.URL, nil)

		resp, err := client.Post(context.Background(), "/lookups", map[string]string{"name": "Orders"})
		require.NoError(t, err)
		assert.Equal(t, 201, resp.StatusCode)
		assert.Empty(t, resp.Object())
	})

	t.Run("custom headers override defaults", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "PATCH", request.Header.Get("X-HTTP-Method-Override"))
			assert.Equal(t, "application/octet-stream", request.Header.Get("Accept"))
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := oichttp.NewClient(server.URL, nil)

		_, err := client.Do(context.Background(), &oichttp.Request{
			Method: "PUT",
			Path:   "/integrations/X",
			Headers: map[string]string{
				"X-HTTP-Method-Override": "PATCH",
				"Accept":                 "application/octet-stream",
			},
		})
		require.NoError(t, err)
	})

	t.Run("with debug logging", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(writer).Encode(map[string]string{"result": "ok"})
		}))
		defer server.Close()

		logger := &MockLogger{}
		client := oichttp.NewClient(server.URL, nil, oichttp.WithLogger(logger), oichttp.WithDebug(true))

		_, err := client.Get(context.Background(), "/test", nil)
		require.NoError(t, err)

		require.Len(t, logger.logs, 2)
		assert.Equal(t, "HTTP Request", logger.logs[0]["msg"])
		assert.Equal(t, "HTTP Response", logger.logs[1]["msg"])
	})
}

func TestClient_ErrorTaxonomy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		body        string
		check       func(t *testing.T, err error)
		wantMessage string
	}{
		{
			name:   "404 carries the URL",
			status: http.StatusNotFound,
			body:   `{"title":"Not Found"}`,
			check: func(t *testing.T, err error) {
				t.Helper()

				var notFound *oic.ResourceNotFoundError
				require.ErrorAs(t, err, &notFound)
				assert.Contains(t, notFound.URL, "/connections/MISSING")
			},
		},
		{
			name:        "detail wins",
			status:      http.StatusConflict,
			body:        `{"detail":"already exists","message":"conflict","title":"Conflict"}`,
			wantMessage: "already exists",
		},
		{
			name:        "message before title",
			status:      http.StatusBadRequest,
			body:        `{"message":"bad filter","title":"Bad Request"}`,
			wantMessage: "bad filter",
		},
		{
			name:        "title as last JSON field",
			status:      http.StatusForbidden,
			body:        `{"title":"Forbidden"}`,
			wantMessage: "Forbidden",
		},
		{
			name:        "raw body fallback",
			status:      http.StatusBadGateway,
			body:        "upstream unavailable",
			wantMessage: "upstream unavailable",
		},
		{
			name:        "status text when body is empty",
			status:      http.StatusServiceUnavailable,
			wantMessage: "Service Unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
				writer.WriteHeader(tt.status)
				_, _ = writer.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := oichttp.NewClient(server.URL, nil)

			resp, err := client.Get(context.Background(), "/connections/MISSING", nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.status, resp.StatusCode)

			if tt.check != nil {
				tt.check(t, err)

				return
			}

			var apiErr *oic.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
		})
	}
}

func TestClient_TransportFailureIsAPIError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	serverURL := server.URL
	server.Close()

	client := oichttp.NewClient(serverURL, nil, oichttp.WithTimeout(time.Second))

	_, err := client.Get(context.Background(), "/connections", nil)
	require.Error(t, err)

	var apiErr *oic.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 0, apiErr.StatusCode)
	assert.Error(t, apiErr.Err)
}

func TestClient_UnauthorizedRefreshesOnce(t *testing.T) {
	t.Parallel()

	t.Run("retry succeeds with new token", func(t *testing.T) {
		t.Parallel()

		var attempts int32

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			atomic.AddInt32(&attempts, 1)

			if request.Header.Get("Authorization") != "Bearer token-1" {
				writer.WriteHeader(http.StatusUnauthorized)

				return
			}

			_, _ = writer.Write([]byte(`{"items":[]}`))
		}))
		defer server.Close()

		tokens := &MockTokenManager{}
		client := oichttp.NewClient(server.URL, tokens)

		resp, err := client.Get(context.Background(), "/integrations", nil)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, 1, tokens.refreshes)
		assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
	})

	t.Run("second 401 surfaces without further retry", func(t *testing.T) {
		t.Parallel()

		var attempts int32

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			atomic.AddInt32(&attempts, 1)
			writer.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		tokens := &MockTokenManager{}
		client := oichttp.NewClient(server.URL, tokens, oichttp.WithRetryConfig(3, time.Millisecond, 5*time.Millisecond))

		_, err := client.Get(context.Background(), "/integrations", nil)
		require.Error(t, err)
		assert.True(t, oic.IsUnauthorized(err))
		assert.Equal(t, 1, tokens.refreshes)
		assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
	})

	t.Run("refresh failure is an authentication error", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			writer.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		tokens := &MockTokenManager{refreshErr: oic.ErrStaticTokenCannotRefresh}
		client := oichttp.NewClient(server.URL, tokens)

		_, err := client.Get(context.Background(), "/integrations", nil)
		require.Error(t, err)
		assert.True(t, oic.IsUnauthorized(err))
		assert.ErrorIs(t, err, oic.ErrStaticTokenCannotRefresh)
	})
}

func TestResponse_Object(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		resp  oichttp.Response
		check func(t *testing.T, obj oic.Object)
	}{
		{
			name: "no content",
			resp: oichttp.Response{StatusCode: http.StatusNoContent, Body: []byte(`{"ignored":true}`)},
			check: func(t *testing.T, obj oic.Object) {
				t.Helper()
				assert.Empty(t, obj)
			},
		},
		{
			name: "whitespace body",
			resp: oichttp.Response{StatusCode: http.StatusOK, Body: []byte("  \n")},
			check: func(t *testing.T, obj oic.Object) {
				t.Helper()
				assert.Empty(t, obj)
			},
		},
		{
			name: "bare array",
			resp: oichttp.Response{StatusCode: http.StatusOK, Body: []byte(`[{"id":"A"},{"id":"B"}]`)},
			check: func(t *testing.T, obj oic.Object) {
				t.Helper()
				assert.Len(t, obj.Objects("items"), 2)
			},
		},
		{
			name: "binary",
			resp: oichttp.Response{StatusCode: http.StatusOK, Body: []byte("PK\x03\x04binary")},
			check: func(t *testing.T, obj oic.Object) {
				t.Helper()
				assert.Equal(t, []byte("PK\x03\x04binary"), obj["content"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.check(t, tt.resp.Object())
		})
	}
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_Methods(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		fn     func(*oichttp.Client, context.Context) (*oichttp.Response, error)
	}{
		{
			name:   "GET",
			method: "GET",
			fn: func(c *oichttp.Client, ctx context.Context) (*oichttp.Response, error) {
				return c.Get(ctx, "/test", nil)
			},
		},
		{
			name:   "POST",
			method: "POST",
			fn: func(c *oichttp.Client, ctx context.Context) (*oichttp.Response, error) {
				return c.Post(ctx, "/test", map[string]string{"key": "value"})
			},
		},
		{
			name:   "PUT",
			method: "PUT",
			fn: func(c *oichttp.Client, ctx context.Context) (*oichttp.Response, error) {
				return c.Put(ctx, "/test", map[string]string{"key": "value"})
			},
		},
		{
			name:   "PATCH",
			method: "PATCH",
			fn: func(c *oichttp.Client, ctx context.Context) (*oichttp.Response, error) {
				return c.Patch(ctx, "/test", map[string]string{"key": "value"})
			},
		},
		{
			name:   "DELETE",
			method: "DELETE",
			fn: func(c *oichttp.Client, ctx context.Context) (*oichttp.Response, error) {
				return c.Delete(ctx, "/test")
			},
		},
		{
			name:   "raw POST",
			method: "POST",
			fn: func(c *oichttp.Client, ctx context.Context) (*oichttp.Response, error) {
				return c.PostRaw(ctx, "/test", []byte("payload"), "multipart/form-data; boundary=x")
			},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
				assert.Equal(t, testCase.method, request.Method)
				assert.Equal(t, "/test", request.URL.Path)
				writer.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			client := oichttp.NewClient(server.URL, nil)
			resp, err := testCase.fn(client, context.Background())
			require.NoError(t, err)
			assert.Equal(t, 200, resp.StatusCode)
		})
	}
}

type countingObserver struct {
	mu       sync.Mutex
	statuses []int
}

func (o *countingObserver) ObserveRequest(_ string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.statuses = append(o.statuses, status)
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_RetryLogic(t *testing.T) {
	t.Parallel()

	t.Run("retries on 5xx errors", func(t *testing.T) {
		t.Parallel()

		var attempts int32

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			if atomic.AddInt32(&attempts, 1) < 3 {
				writer.WriteHeader(http.StatusInternalServerError)
			} else {
				writer.WriteHeader(http.StatusOK)
			}
		}))
		defer server.Close()

		observer := &countingObserver{}
		client := oichttp.NewClient(server.URL, nil,
			oichttp.WithRetryConfig(3, 10*time.Millisecond, 100*time.Millisecond),
			oichttp.WithRequestObserver(observer))

		resp, err := client.Get(context.Background(), "/test", nil)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
		assert.Equal(t, []int{200}, observer.statuses)
	})

	t.Run("retries on rate limiting", func(t *testing.T) {
		t.Parallel()

		var attempts int32

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			if atomic.AddInt32(&attempts, 1) < 2 {
				writer.WriteHeader(http.StatusTooManyRequests)
			} else {
				writer.WriteHeader(http.StatusOK)
			}
		}))
		defer server.Close()

		client := oichttp.NewClient(server.URL, nil, oichttp.WithRetryConfig(3, 10*time.Millisecond, 100*time.Millisecond))

		resp, err := client.Get(context.Background(), "/test", nil)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
	})

	t.Run("retries disabled by default", func(t *testing.T) {
		t.Parallel()

		var attempts int32

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			atomic.AddInt32(&attempts, 1)
			writer.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := oichttp.NewClient(server.URL, nil)

		resp, err := client.Get(context.Background(), "/test", nil)
		require.Error(t, err)
		assert.Equal(t, 500, resp.StatusCode)
		assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
	})

	t.Run("does not retry on client errors", func(t *testing.T) {
		t.Parallel()

		var attempts int32

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			atomic.AddInt32(&attempts, 1)
			writer.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		client := oichttp.NewClient(server.URL, nil, oichttp.WithRetryConfig(3, 10*time.Millisecond, 100*time.Millisecond))

		resp, err := client.Get(context.Background(), "/test", nil)
		require.Error(t, err)
		assert.Equal(t, 400, resp.StatusCode)
		assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
	})
}
