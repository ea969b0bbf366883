package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/WolVesz/oic-devops/pkg/oic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitoringClient_ListInstancesIgnoresHasMore(t *testing.T) {
	t.Parallel()

	const total = 937

	var calls int32

	client := NewTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)

		query := r.URL.Query()
		assert.Equal(t, "/ic/api/integration/v1/monitoring/instances", r.URL.Path)
		assert.Equal(t, "{timewindow:'RETENTIONPERIOD'}", query.Get("q"))
		assert.Equal(t, "50", query.Get("limit"))
		assert.Equal(t, "HELLO|01.00.0000", query.Get("integrationId"))

		offset, _ := strconv.Atoi(query.Get("offset"))

		items := []interface{}{}
		for i := offset; i < offset+50 && i < total; i++ {
			items = append(items, map[string]interface{}{"id": strconv.Itoa(i)})
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"items":             items,
			"totalResults":      len(items),
			"totalRecordsCount": total,
			"hasMore":           false,
		})
	})

	instances, err := client.Monitoring().ListInstances(context.Background(), oic.InstanceFilter{IntegrationID: "HELLO|01.00.0000"})
	require.NoError(t, err)
	assert.Len(t, instances, 550)
	assert.Equal(t, int32(11), atomic.LoadInt32(&calls))
}

func TestMonitoringClient_ListInstancesBounded(t *testing.T) {
	t.Parallel()

	const total = 937

	var calls int32

	client := NewTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		items := []interface{}{}
		for i := offset; i < offset+50 && i < total; i++ {
			items = append(items, map[string]interface{}{"id": strconv.Itoa(i)})
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"items":             items,
			"totalResults":      len(items),
			"totalRecordsCount": total,
		})
	})

	instances, err := client.Monitoring().ListInstances(context.Background(), oic.InstanceFilter{Status: "FAILED", Limit: 500})
	require.NoError(t, err)
	assert.Len(t, instances, 550)
	assert.Equal(t, int32(11), atomic.LoadInt32(&calls))
}

func TestInstanceParams(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	params := instanceParams(oic.InstanceFilter{
		Status:     "FAILED",
		TimeWindow: "1d",
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
		Limit:      20,
	})

	assert.Equal(t, url.Values{
		"q":         {"{timewindow:'1d'}"},
		"status":    {"FAILED"},
		"startTime": {"2026-01-02T03:04:05Z"},
		"endTime":   {"2026-01-02T04:04:05Z"},
		"limit":     {"20"},
	}, params)
}

func TestMonitoringClient_InstanceEndpoints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		call       func(ctx context.Context, m oic.MonitoringGateway) (interface{}, error)
		wantMethod string
		wantPath   string
		response   interface{}
	}{
		{
			name:       "instance",
			call:       func(ctx context.Context, m oic.MonitoringGateway) (interface{}, error) { return m.Instance(ctx, "42") },
			wantMethod: http.MethodGet,
			wantPath:   "/ic/api/integration/v1/monitoring/instances/42",
			response:   map[string]interface{}{"id": "42"},
		},
		{
			name:       "activities",
			call:       func(ctx context.Context, m oic.MonitoringGateway) (interface{}, error) { return m.Activities(ctx, "42") },
			wantMethod: http.MethodGet,
			wantPath:   "/ic/api/integration/v1/monitoring/instances/42/activities",
			response:   map[string]interface{}{"items": []interface{}{map[string]interface{}{"id": "a1"}}},
		},
		{
			name: "payload",
			call: func(ctx context.Context, m oic.MonitoringGateway) (interface{}, error) {
				return m.Payload(ctx, "42", "a1", "request")
			},
			wantMethod: http.MethodGet,
			wantPath:   "/ic/api/integration/v1/monitoring/instances/42/activities/a1/payload/request",
			response:   map[string]interface{}{"payload": "<xml/>"},
		},
		{
			name: "purge",
			call: func(ctx context.Context, m oic.MonitoringGateway) (interface{}, error) {
				return m.Purge(ctx, oic.Object{"status": "FAILED"})
			},
			wantMethod: http.MethodPost,
			wantPath:   "/ic/api/integration/v1/monitoring/instances/purge",
			response:   map[string]interface{}{"purged": 3},
		},
		{
			name:       "resubmit",
			call:       func(ctx context.Context, m oic.MonitoringGateway) (interface{}, error) { return m.Resubmit(ctx, "42") },
			wantMethod: http.MethodPost,
			wantPath:   "/ic/api/integration/v1/monitoring/instances/42/resubmit",
			response:   map[string]interface{}{"status": "SUBMITTED"},
		},
		{
			name: "integration stats",
			call: func(ctx context.Context, m oic.MonitoringGateway) (interface{}, error) {
				return m.IntegrationStats(ctx, url.Values{"interval": {"1d"}})
			},
			wantMethod: http.MethodGet,
			wantPath:   "/ic/api/integration/v1/monitoring/integrationStats",
			response:   map[string]interface{}{"totalCount": 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := NewTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.wantMethod, r.Method)
				assert.Equal(t, tt.wantPath, r.URL.Path)
				writeJSON(w, http.StatusOK, tt.response)
			})

			result, err := tt.call(context.Background(), client.Monitoring())
			require.NoError(t, err)
			assert.NotEmpty(t, result)
		})
	}
}

func TestMonitoringClient_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body interface{}
	}{
		{name: "items", body: map[string]interface{}{"items": []interface{}{map[string]interface{}{"id": "e1"}}}},
		{name: "elements", body: map[string]interface{}{"elements": []interface{}{map[string]interface{}{"id": "e1"}}}},
		{name: "list", body: map[string]interface{}{"list": []interface{}{map[string]interface{}{"id": "e1"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := NewTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/ic/api/integration/v1/monitoring/errors", r.URL.Path)
				writeJSON(w, http.StatusOK, tt.body)
			})

			records, err := client.Monitoring().Errors(context.Background(), nil)
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, "e1", records[0].ID())
		})
	}
}
