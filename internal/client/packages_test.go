package client

import (
	"context"
	"net/http"
	"testing"

	"github.com/WolVesz/oic-devops/pkg/oic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackagesClient_Resources(t *testing.T) {
	t.Parallel()

	client := NewTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "/ic/api/integration/v1/packages/ORDERS/resources", r.URL.Path)
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"items": []interface{}{map[string]interface{}{"id": "HELLO|01.00.0000", "type": "INTEGRATION"}},
			})
		case http.MethodPost:
			body := decodeBody(t, r)
			assert.Equal(t, "INTEGRATION", body["resourceType"])
			writeJSON(w, http.StatusOK, body)
		case http.MethodDelete:
			assert.Equal(t, "/ic/api/integration/v1/packages/ORDERS/resources/HELLO%7C01.00.0000", r.URL.EscapedPath())
			w.WriteHeader(http.StatusNoContent)
		}
	})

	ctx := context.Background()

	resources, err := client.Packages().Resources(ctx, "ORDERS")
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, "HELLO|01.00.0000", resources[0].ID())

	_, err = client.Packages().AddResource(ctx, "ORDERS", oic.Object{"resourceType": "INTEGRATION"})
	require.Error(t, err)

	var validationErr *oic.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, []string{"resourceId"}, validationErr.Missing)

	_, err = client.Packages().AddResource(ctx, "ORDERS", oic.Object{"resourceType": "INTEGRATION", "resourceId": "HELLO|01.00.0000"})
	require.NoError(t, err)

	require.NoError(t, client.Packages().RemoveResource(ctx, "ORDERS", "HELLO|01.00.0000"))
}

func TestLookupsClient_Data(t *testing.T) {
	t.Parallel()

	client := NewTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ic/api/integration/v1/lookups/COUNTRY/data", r.URL.Path)

		if r.Method == http.MethodPut {
			body := decodeBody(t, r)
			assert.Len(t, body["rows"], 1)
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{"rows": []interface{}{[]interface{}{"US", "USA"}}})
	})

	ctx := context.Background()

	data, err := client.Lookups().Data(ctx, "COUNTRY")
	require.NoError(t, err)
	assert.Len(t, data.Slice("rows"), 1)

	_, err = client.Lookups().UpdateData(ctx, "COUNTRY", oic.Object{})
	assert.True(t, oic.IsValidation(err))

	_, err = client.Lookups().UpdateData(ctx, "COUNTRY", oic.Object{"rows": []interface{}{[]interface{}{"US", "USA"}}})
	require.NoError(t, err)
}
