package client

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/WolVesz/oic-devops/pkg/oic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateway_CreateValidatesRequiredFields(t *testing.T) {
	t.Parallel()

	complete := oic.Object{
		"name":            "Orders",
		"identifier":      "ORDERS",
		"connectionType":  "REST",
		"integrationType": "ORCHESTRATION",
		"columns":         []interface{}{"a"},
		"resources":       []interface{}{"x"},
	}

	tests := []struct {
		kind     oic.ResourceKind
		required []string
	}{
		{kind: oic.KindConnection, required: []string{"name", "identifier", "connectionType"}},
		{kind: oic.KindIntegration, required: []string{"name", "identifier", "integrationType"}},
		{kind: oic.KindLookup, required: []string{"name", "identifier", "columns"}},
		{kind: oic.KindLibrary, required: []string{"name", "identifier"}},
		{kind: oic.KindPackage, required: []string{"name", "identifier", "resources"}},
	}

	for _, tt := range tests {
		for _, field := range tt.required {
			t.Run(string(tt.kind)+" without "+field, func(t *testing.T) {
				t.Parallel()

				var calls int32

				client := NewTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
					atomic.AddInt32(&calls, 1)
					writeJSON(w, http.StatusCreated, map[string]interface{}{})
				})

				gateway, err := oic.GatewayFor(client, tt.kind)
				require.NoError(t, err)

				data := complete.Clone()
				delete(data, field)

				_, err = gateway.Create(context.Background(), data)
				require.Error(t, err)

				var validationErr *oic.ValidationError
				require.ErrorAs(t, err, &validationErr)
				assert.Equal(t, tt.kind, validationErr.Kind)
				assert.Equal(t, []string{field}, validationErr.Missing)
				assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
			})
		}
	}
}

func TestGateway_CreateSendsBody(t *testing.T) {
	t.Parallel()

	client := NewTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/ic/api/integration/v1/libraries", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		body := decodeBody(t, r)
		assert.Equal(t, "LIB", body["identifier"])

		writeJSON(w, http.StatusCreated, map[string]interface{}{"id": "LIB|01.00.0000", "name": body["name"]})
	})

	created, err := client.Libraries().Create(context.Background(), oic.Object{"name": "Lib", "identifier": "LIB"})
	require.NoError(t, err)
	assert.Equal(t, "LIB|01.00.0000", created.ID())
}

func TestGateway_List(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     interface{}
		expected []string
	}{
		{
			name:     "items envelope",
			body:     map[string]interface{}{"items": []interface{}{map[string]interface{}{"id": "a"}}},
			expected: []string{"a"},
		},
		{
			name:     "elements envelope",
			body:     map[string]interface{}{"elements": []interface{}{map[string]interface{}{"id": "b"}, map[string]interface{}{"id": "c"}}},
			expected: []string{"b", "c"},
		},
		{
			name:     "bare array",
			body:     []interface{}{map[string]interface{}{"id": "d"}},
			expected: []string{"d"},
		},
		{
			name:     "unexpected envelope",
			body:     map[string]interface{}{"data": []interface{}{}},
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := NewTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, testIdentityDomain, r.URL.Query().Get("integrationInstance"))
				writeJSON(w, http.StatusOK, tt.body)
			})

			items, err := client.Lookups().List(context.Background(), nil)
			require.NoError(t, err)

			ids := make([]string, 0, len(items))
			for _, item := range items {
				ids = append(ids, item.ID())
			}

			assert.Equal(t, tt.expected, ids)
		})
	}
}

func TestGateway_ListAllFollowsPages(t *testing.T) {
	t.Parallel()

	var offsets []string

	client := NewTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		offsets = append(offsets, r.URL.Query().Get("offset"))

		items := []interface{}{}
		for i := offset; i < offset+2 && i < 5; i++ {
			items = append(items, map[string]interface{}{"id": "conn-" + strconv.Itoa(i)})
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"items":   items,
			"limit":   2,
			"hasMore": offset+2 < 5,
		})
	})

	items, err := client.Connections().ListAll(context.Background(), url.Values{"limit": {"2"}})
	require.NoError(t, err)
	assert.Len(t, items, 5)
	assert.Equal(t, []string{"0", "2", "4"}, offsets)
}

func TestGateway_PathEscapesCompositeIDs(t *testing.T) {
	t.Parallel()

	client := NewTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ic/api/integration/v1/integrations/HELLO%7C01.00.0000", r.URL.EscapedPath())
		assert.Equal(t, "/ic/api/integration/v1/integrations/HELLO|01.00.0000", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": "HELLO|01.00.0000", "status": "CONFIGURED"})
	})

	obj, err := client.Integrations().Get(context.Background(), "HELLO|01.00.0000")
	require.NoError(t, err)
	assert.Equal(t, "CONFIGURED", obj.Status())
}

func TestGateway_GetNotFound(t *testing.T) {
	t.Parallel()

	client := NewTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"detail": "missing"})
	})

	_, err := client.Packages().Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, oic.IsNotFound(err))
}

func TestGateway_ExecuteAction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		action       string
		id           string
		method       string
		expectMethod string
		expectPath   string
	}{
		{name: "default post", action: "test", id: "C1", method: "", expectMethod: http.MethodPost, expectPath: "/ic/api/integration/v1/connections/C1/test"},
		{name: "get without id", action: "types", method: "get", expectMethod: http.MethodGet, expectPath: "/ic/api/integration/v1/connections/types"},
		{name: "put", action: "metadata", id: "C1", method: "PUT", expectMethod: http.MethodPut, expectPath: "/ic/api/integration/v1/connections/C1/metadata"},
		{name: "patch", action: "metadata", id: "C1", method: "PATCH", expectMethod: http.MethodPatch, expectPath: "/ic/api/integration/v1/connections/C1/metadata"},
		{name: "delete", action: "attachment", id: "C1", method: "DELETE", expectMethod: http.MethodDelete, expectPath: "/ic/api/integration/v1/connections/C1/attachment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := NewTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.expectMethod, r.Method)
				assert.Equal(t, tt.expectPath, r.URL.Path)
				writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
			})

			result, err := client.Connections().ExecuteAction(context.Background(), tt.action, tt.id, nil, tt.method)
			require.NoError(t, err)
			assert.Equal(t, "ok", result.Status())
		})
	}

	t.Run("unsupported method", func(t *testing.T) {
		t.Parallel()

		client := NewTestClient(t, func(http.ResponseWriter, *http.Request) {
			t.Error("no request expected")
		})

		_, err := client.Connections().ExecuteAction(context.Background(), "test", "C1", nil, "TRACE")
		require.ErrorIs(t, err, oic.ErrUnsupportedMethod)
	})
}

func TestNormalizeExportPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		extensions []string
		expected   string
	}{
		{name: "appends primary extension", path: "out/HELLO", extensions: []string{".zip", ".iar"}, expected: filepath.Join("out", "HELLO.zip")},
		{name: "keeps primary extension", path: "out/HELLO.zip", extensions: []string{".zip", ".iar"}, expected: filepath.Join("out", "HELLO.zip")},
		{name: "keeps secondary extension", path: "out/HELLO.iar", extensions: []string{".zip", ".iar"}, expected: filepath.Join("out", "HELLO.iar")},
		{name: "case insensitive match", path: "out/LIB.JAR", extensions: []string{".jar"}, expected: filepath.Join("out", "LIB.JAR")},
		{name: "replaces pipe in name", path: "out/HELLO|01.00.0000", extensions: []string{".zip"}, expected: filepath.Join("out", "HELLO-01.00.0000.zip")},
		{name: "no extensions", path: "out/a|b", extensions: nil, expected: filepath.Join("out", "a-b")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, NormalizeExportPath(tt.path, tt.extensions...))
		})
	}
}

func TestGateway_ExportBinary(t *testing.T) {
	t.Parallel()

	t.Run("writes archive bytes", func(t *testing.T) {
		t.Parallel()

		archive := []byte("PK\x03\x04archive")

		client := NewTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/ic/api/integration/v1/integrations/HELLO|01.00.0000/archive", r.URL.Path)
			assert.Equal(t, "application/octet-stream", r.Header.Get("Accept"))
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write(archive)
		})

		dir := t.TempDir()

		written, err := client.Integrations().ExportBinary(context.Background(), "HELLO|01.00.0000", filepath.Join(dir, "HELLO|01.00.0000"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "HELLO-01.00.0000.zip"), written)

		content, err := os.ReadFile(written)
		require.NoError(t, err)
		assert.Equal(t, archive, content)
	})

	t.Run("integration archives are always zip", func(t *testing.T) {
		t.Parallel()

		client := NewTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write([]byte("PK\x03\x04"))
		})

		dir := t.TempDir()

		written, err := client.Integrations().ExportBinary(context.Background(), "HELLO|01.00.0000", filepath.Join(dir, "HELLO.iar"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "HELLO.iar.zip"), written)
	})

	t.Run("empty export fails", func(t *testing.T) {
		t.Parallel()

		client := NewTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		_, err := client.Packages().ExportBinary(context.Background(), "PKG", filepath.Join(t.TempDir(), "PKG"))
		require.ErrorIs(t, err, oic.ErrEmptyExport)
	})
}

func TestGateway_ImportBinary(t *testing.T) {
	t.Parallel()

	t.Run("uploads multipart file", func(t *testing.T) {
		t.Parallel()

		client := NewTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/ic/api/integration/v1/packages/import", r.URL.Path)

			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "true", r.FormValue("overwrite"))

			file, header, err := r.FormFile("file")
			require.NoError(t, err)

			defer func() { _ = file.Close() }()

			content, err := io.ReadAll(file)
			require.NoError(t, err)
			assert.Equal(t, "ORDERS.par", header.Filename)
			assert.Equal(t, "package-bytes", string(content))

			writeJSON(w, http.StatusOK, map[string]interface{}{"status": "imported"})
		})

		path := filepath.Join(t.TempDir(), "ORDERS.par")
		require.NoError(t, os.WriteFile(path, []byte("package-bytes"), 0o600))

		result, err := client.Packages().ImportBinary(context.Background(), path, map[string]string{"overwrite": "true"})
		require.NoError(t, err)
		assert.Equal(t, "imported", result.Status())
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		client := NewTestClient(t, func(http.ResponseWriter, *http.Request) {
			t.Error("no request expected")
		})

		_, err := client.Integrations().ImportBinary(context.Background(), filepath.Join(t.TempDir(), "absent.iar"), nil)
		require.Error(t, err)
		assert.True(t, oic.IsValidation(err))
	})
}
