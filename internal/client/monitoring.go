package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/internal/http"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

// MonitoringClient implements oic.MonitoringGateway.
type MonitoringClient struct {
	httpClient *http.Client
	logger     oic.Logger
	basePath   string
}

// NewMonitoringClient creates a new monitoring client.
func NewMonitoringClient(httpClient *http.Client, logger oic.Logger) *MonitoringClient {
	if logger == nil {
		logger = oic.NoopLogger{}
	}

	return &MonitoringClient{
		httpClient: httpClient,
		logger:     logger,
		basePath:   constants.APIPathMonitoring,
	}
}

// instanceParams renders a filter as query parameters. The time window goes
// into the q expression; the rest are plain parameters.
func instanceParams(filter oic.InstanceFilter) url.Values {
	params := url.Values{}

	timeWindow := filter.TimeWindow
	if timeWindow == "" {
		timeWindow = constants.DefaultTimeWindow
	}

	params.Set(constants.QueryFilter, "{timewindow:'"+timeWindow+"'}")

	if filter.IntegrationID != "" {
		params.Set("integrationId", filter.IntegrationID)
	}

	if filter.Status != "" {
		params.Set(constants.QueryStatus, filter.Status)
	}

	if !filter.StartTime.IsZero() {
		params.Set("startTime", filter.StartTime.UTC().Format(time.RFC3339))
	}

	if !filter.EndTime.IsZero() {
		params.Set("endTime", filter.EndTime.UTC().Format(time.RFC3339))
	}

	limit := filter.Limit
	if limit <= 0 || limit > constants.MonitoringPageLimit {
		limit = constants.MonitoringPageLimit
	}

	params.Set(constants.QueryLimit, strconv.Itoa(limit))

	return params
}

// listInstancesPage fetches one page of instances. The endpoint always
// reports hasMore=false, so the flag is dropped and totalRecordsCount decides.
func (c *MonitoringClient) listInstancesPage(ctx context.Context, params url.Values) (oic.Object, error) {
	resp, err := c.httpClient.Get(ctx, c.basePath+"/instances", params)
	if err != nil {
		return nil, fmt.Errorf("listing instances: %w", err)
	}

	body := resp.Object()
	delete(body, "hasMore")

	return body, nil
}

// ListInstances returns every instance matching filter. The endpoint rejects
// offsets above 500, so listings end there even when more instances exist.
func (c *MonitoringClient) ListInstances(ctx context.Context, filter oic.InstanceFilter) ([]oic.Object, error) {
	return oic.CollectAll(ctx, c.listInstancesPage, instanceParams(filter),
		oic.WithMaxOffset(constants.MonitoringMaxOffset),
		oic.WithPageLogger(c.logger),
	)
}

// Instance returns one instance.
func (c *MonitoringClient) Instance(ctx context.Context, id string) (oic.Object, error) {
	resp, err := c.httpClient.Get(ctx, c.basePath+"/instances/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("getting instance %s: %w", id, err)
	}

	return resp.Object(), nil
}

// Activities returns the activity stream of an instance.
func (c *MonitoringClient) Activities(ctx context.Context, id string) ([]oic.Object, error) {
	resp, err := c.httpClient.Get(ctx, c.basePath+"/instances/"+url.PathEscape(id)+"/activities", nil)
	if err != nil {
		return nil, fmt.Errorf("getting activities of %s: %w", id, err)
	}

	body := resp.Object()
	if !body.Has("items") && !body.Has("elements") {
		c.logger.Warn("unexpected activities response envelope", map[string]interface{}{"keys": body.Keys()})
	}

	return oic.ParsePage(body).Items, nil
}

// Payload returns the request or response payload of one activity.
func (c *MonitoringClient) Payload(ctx context.Context, instanceID, activityID, direction string) (oic.Object, error) {
	path := fmt.Sprintf("%s/instances/%s/activities/%s/payload/%s", c.basePath,
		url.PathEscape(instanceID), url.PathEscape(activityID), url.PathEscape(direction))

	resp, err := c.httpClient.Get(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("getting %s payload of %s/%s: %w", direction, instanceID, activityID, err)
	}

	return resp.Object(), nil
}

// Purge deletes instances matching the criteria in data.
func (c *MonitoringClient) Purge(ctx context.Context, data oic.Object) (oic.Object, error) {
	resp, err := c.httpClient.Post(ctx, c.basePath+"/instances/purge", data)
	if err != nil {
		return nil, fmt.Errorf("purging instances: %w", err)
	}

	return resp.Object(), nil
}

// Resubmit resubmits a failed instance.
func (c *MonitoringClient) Resubmit(ctx context.Context, id string) (oic.Object, error) {
	resp, err := c.httpClient.Post(ctx, c.basePath+"/instances/"+url.PathEscape(id)+"/resubmit", nil)
	if err != nil {
		return nil, fmt.Errorf("resubmitting instance %s: %w", id, err)
	}

	return resp.Object(), nil
}

// IntegrationStats returns aggregate run statistics.
func (c *MonitoringClient) IntegrationStats(ctx context.Context, params url.Values) (oic.Object, error) {
	resp, err := c.httpClient.Get(ctx, c.basePath+"/integrationStats", params)
	if err != nil {
		return nil, fmt.Errorf("getting integration statistics: %w", err)
	}

	return resp.Object(), nil
}

// Errors returns recent error records. The list may arrive as items,
// elements or list.
func (c *MonitoringClient) Errors(ctx context.Context, params url.Values) ([]oic.Object, error) {
	resp, err := c.httpClient.Get(ctx, c.basePath+"/errors", params)
	if err != nil {
		return nil, fmt.Errorf("getting errors: %w", err)
	}

	body := resp.Object()
	if body.Has("list") && !body.Has("items") && !body.Has("elements") {
		return body.Objects("list"), nil
	}

	return oic.ParsePage(body).Items, nil
}
