package client

import (
	"context"
	"fmt"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/internal/http"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

// LookupsClient implements oic.LookupsGateway.
type LookupsClient struct {
	*Gateway
}

// NewLookupsClient creates a new lookups client.
func NewLookupsClient(httpClient *http.Client, logger oic.Logger) *LookupsClient {
	return &LookupsClient{
		Gateway: newGateway(httpClient, resourceSpec{
			kind:         oic.KindLookup,
			basePath:     constants.APIPathLookups,
			required:     []string{"name", "identifier", "columns"},
			exportAction: "archive",
			extensions:   []string{".csv"},
		}, logger),
	}
}

// Data returns the rows of a lookup.
func (c *LookupsClient) Data(ctx context.Context, id string) (oic.Object, error) {
	resp, err := c.httpClient.Get(ctx, c.path(id, "data"), nil)
	if err != nil {
		return nil, fmt.Errorf("getting lookup data %s: %w", id, err)
	}

	return resp.Object(), nil
}

// UpdateData replaces the rows of a lookup.
func (c *LookupsClient) UpdateData(ctx context.Context, id string, data oic.Object) (oic.Object, error) {
	err := requireFields(oic.KindLookup, data, []string{"rows"})
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Put(ctx, c.path(id, "data"), data)
	if err != nil {
		return nil, fmt.Errorf("updating lookup data %s: %w", id, err)
	}

	return resp.Object(), nil
}
