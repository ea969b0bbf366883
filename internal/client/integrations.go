package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/internal/http"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

const integrationCachePrefix = "integration:"

// IntegrationsClient implements oic.IntegrationsGateway.
type IntegrationsClient struct {
	*Gateway

	cache    oic.Cache
	cacheTTL time.Duration
}

// NewIntegrationsClient creates a new integrations client. A nil cache
// disables GetCached caching.
func NewIntegrationsClient(httpClient *http.Client, logger oic.Logger, cache oic.Cache, cacheTTL time.Duration) *IntegrationsClient {
	if cache == nil {
		cache = oic.NewNoOpCache()
	}

	return &IntegrationsClient{
		Gateway: newGateway(httpClient, resourceSpec{
			kind:         oic.KindIntegration,
			basePath:     constants.APIPathIntegrations,
			required:     []string{"name", "identifier", "integrationType"},
			exportAction: "archive",
			extensions:   []string{".zip"},
		}, logger),
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

// Update replaces the integration and drops its cached copy.
func (c *IntegrationsClient) Update(ctx context.Context, id string, data oic.Object) (oic.Object, error) {
	defer c.invalidate(ctx, id)

	return c.Gateway.Update(ctx, id, data)
}

// Delete removes the integration and drops its cached copy.
func (c *IntegrationsClient) Delete(ctx context.Context, id string) error {
	defer c.invalidate(ctx, id)

	return c.Gateway.Delete(ctx, id)
}

// Activate moves the integration to ACTIVATED.
func (c *IntegrationsClient) Activate(ctx context.Context, id string) (oic.Object, error) {
	obj, err := c.patchStatus(ctx, id, oic.Object{"status": constants.StatusActivated})
	if err != nil {
		return nil, fmt.Errorf("activating integration %s: %w", id, err)
	}

	return obj, nil
}

// Deactivate moves the integration to CONFIGURED, optionally stopping its schedule.
func (c *IntegrationsClient) Deactivate(ctx context.Context, id string, stopSchedule bool) (oic.Object, error) {
	body := oic.Object{"status": constants.StatusConfigured}
	if stopSchedule {
		body["stopScheduleForDeactivation"] = "true"
	}

	obj, err := c.patchStatus(ctx, id, body)
	if err != nil {
		return nil, fmt.Errorf("deactivating integration %s: %w", id, err)
	}

	return obj, nil
}

// patchStatus sends a PUT overridden to PATCH, the only status change the
// service accepts.
func (c *IntegrationsClient) patchStatus(ctx context.Context, id string, body oic.Object) (oic.Object, error) {
	defer c.invalidate(ctx, id)

	resp, err := c.httpClient.Do(ctx, &http.Request{
		Method:  "PUT",
		Path:    c.path(id),
		Body:    body,
		Headers: map[string]string{constants.HeaderMethodOverride: "PATCH"},
	})
	if err != nil {
		return nil, err
	}

	return resp.Object(), nil
}

// ResumeSchedule resumes the schedule of a scheduled integration.
func (c *IntegrationsClient) ResumeSchedule(ctx context.Context, id string) (oic.Object, error) {
	resp, err := c.httpClient.Post(ctx, c.path(id, "schedule", "resume"), nil)
	if err != nil {
		return nil, fmt.Errorf("resuming schedule of %s: %w", id, err)
	}

	return resp.Object(), nil
}

// Clone copies an integration under a new name and identifier.
func (c *IntegrationsClient) Clone(ctx context.Context, id string, data oic.Object) (oic.Object, error) {
	err := requireFields(oic.KindIntegration, data, []string{"name", "identifier"})
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Post(ctx, c.path(id, "clone"), data)
	if err != nil {
		return nil, fmt.Errorf("cloning integration %s: %w", id, err)
	}

	return resp.Object(), nil
}

// GetCached returns the integration from the cache, fetching it on a miss.
func (c *IntegrationsClient) GetCached(ctx context.Context, id string) (oic.Object, error) {
	key := integrationCachePrefix + id

	entry, err := c.cache.Get(ctx, key)
	if err == nil {
		var obj oic.Object

		if json.Unmarshal(entry.Data, &obj) == nil {
			return obj, nil
		}
	}

	obj, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(obj)
	if err == nil {
		setErr := c.cache.Set(ctx, key, oic.NewCacheEntry(data, c.cacheTTL))
		if setErr != nil {
			c.logger.Warn("failed to cache integration", map[string]interface{}{"id": id, "error": setErr.Error()})
		}
	}

	return obj, nil
}

func (c *IntegrationsClient) invalidate(ctx context.Context, id string) {
	err := c.cache.Delete(ctx, integrationCachePrefix+id)
	if err != nil {
		c.logger.Debug("failed to invalidate cached integration", map[string]interface{}{"id": id, "error": err.Error()})
	}
}
