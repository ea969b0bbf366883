package client

import (
	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/internal/http"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

// NewLibrariesClient creates the gateway for JavaScript libraries.
func NewLibrariesClient(httpClient *http.Client, logger oic.Logger) *Gateway {
	return newGateway(httpClient, resourceSpec{
		kind:         oic.KindLibrary,
		basePath:     constants.APIPathLibraries,
		required:     []string{"name", "identifier"},
		exportAction: "export",
		extensions:   []string{".jar"},
	}, logger)
}
