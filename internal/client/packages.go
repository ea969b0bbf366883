package client

import (
	"context"
	"fmt"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/internal/http"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

// PackagesClient implements oic.PackagesGateway.
type PackagesClient struct {
	*Gateway
}

// NewPackagesClient creates a new packages client.
func NewPackagesClient(httpClient *http.Client, logger oic.Logger) *PackagesClient {
	return &PackagesClient{
		Gateway: newGateway(httpClient, resourceSpec{
			kind:         oic.KindPackage,
			basePath:     constants.APIPathPackages,
			required:     []string{"name", "identifier", "resources"},
			exportAction: "export",
			extensions:   []string{".par"},
		}, logger),
	}
}

// Resources lists the resources bundled in a package.
func (c *PackagesClient) Resources(ctx context.Context, id string) ([]oic.Object, error) {
	resp, err := c.httpClient.Get(ctx, c.path(id, "resources"), nil)
	if err != nil {
		return nil, fmt.Errorf("getting package resources %s: %w", id, err)
	}

	return oic.ParsePage(resp.Object()).Items, nil
}

// AddResource adds a resource to a package.
func (c *PackagesClient) AddResource(ctx context.Context, id string, data oic.Object) (oic.Object, error) {
	err := requireFields(oic.KindPackage, data, []string{"resourceType", "resourceId"})
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Post(ctx, c.path(id, "resources"), data)
	if err != nil {
		return nil, fmt.Errorf("adding resource to package %s: %w", id, err)
	}

	return resp.Object(), nil
}

// RemoveResource removes a resource from a package.
func (c *PackagesClient) RemoveResource(ctx context.Context, id, resourceID string) error {
	_, err := c.httpClient.Delete(ctx, c.path(id, "resources", resourceID))
	if err != nil {
		return fmt.Errorf("removing resource %s from package %s: %w", resourceID, id, err)
	}

	return nil
}
