package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/internal/http"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

// ConnectionsClient implements oic.ConnectionsGateway.
type ConnectionsClient struct {
	*Gateway
}

// NewConnectionsClient creates a new connections client.
func NewConnectionsClient(httpClient *http.Client, logger oic.Logger) *ConnectionsClient {
	return &ConnectionsClient{
		Gateway: newGateway(httpClient, resourceSpec{
			kind:     oic.KindConnection,
			basePath: constants.APIPathConnections,
			required: []string{"name", "identifier", "connectionType"},
		}, logger),
	}
}

// Test runs the connectivity test of a connection.
func (c *ConnectionsClient) Test(ctx context.Context, id string) (oic.Object, error) {
	resp, err := c.httpClient.Post(ctx, c.path(id, "test"), nil)
	if err != nil {
		return nil, fmt.Errorf("testing connection %s: %w", id, err)
	}

	return resp.Object(), nil
}

// Clone copies a connection under a new name and identifier.
func (c *ConnectionsClient) Clone(ctx context.Context, id string, data oic.Object) (oic.Object, error) {
	err := requireFields(oic.KindConnection, data, []string{"name", "identifier"})
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Post(ctx, c.path(id, "clone"), data)
	if err != nil {
		return nil, fmt.Errorf("cloning connection %s: %w", id, err)
	}

	return resp.Object(), nil
}

// Types lists the available connection adapter types.
func (c *ConnectionsClient) Types(ctx context.Context) ([]oic.Object, error) {
	resp, err := c.httpClient.Get(ctx, c.path("types"), nil)
	if err != nil {
		return nil, fmt.Errorf("listing connection types: %w", err)
	}

	return oic.ParsePage(resp.Object()).Items, nil
}

// FindByIdentifier returns the connection whose identifier matches exactly,
// or a ResourceNotFoundError.
func (c *ConnectionsClient) FindByIdentifier(ctx context.Context, identifier string) (oic.Object, error) {
	params := url.Values{}
	params.Set(constants.QueryFilter, "identifier:'"+identifier+"'")

	items, err := c.ListAll(ctx, params)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		if item.Identifier() == identifier || item.ID() == identifier {
			return item, nil
		}
	}

	return nil, &oic.ResourceNotFoundError{URL: c.spec.basePath + "?identifier=" + identifier}
}
