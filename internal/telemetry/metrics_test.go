package telemetry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Workflow(t *testing.T) {
	t.Parallel()

	m := NewMetrics(MetricsConfig{Enabled: true})

	m.WorkflowStarted("backup", "full_backup")
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.activeWorkflows), 0)

	m.WorkflowCompleted("backup", "full_backup", false, 2*time.Second)
	assert.InDelta(t, 0.0, testutil.ToFloat64(m.activeWorkflows), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.workflowsStarted.WithLabelValues("backup", "full_backup")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.workflowsCompleted.WithLabelValues("backup", "full_backup", "failure")), 0)

	m.ResourceProcessed("integration", "exported")
	m.ResourceProcessed("integration", "exported")
	assert.InDelta(t, 2.0, testutil.ToFloat64(m.resourcesProcessed.WithLabelValues("integration", "exported")), 0)
}

func TestMetrics_ObserveRequest(t *testing.T) {
	t.Parallel()

	m := NewMetrics(MetricsConfig{Enabled: true, Namespace: "test"})

	m.ObserveRequest("GET", 200, 10*time.Millisecond)
	m.ObserveRequest("GET", 0, time.Millisecond)

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "200")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "0")), 0)
}

func TestMetrics_Disabled(t *testing.T) {
	t.Parallel()

	var nilMetrics *Metrics

	for _, m := range []*Metrics{nilMetrics, NewMetrics(MetricsConfig{})} {
		assert.NotPanics(t, func() {
			m.WorkflowStarted("backup", "full_backup")
			m.WorkflowCompleted("backup", "full_backup", true, time.Second)
			m.ResourceProcessed("integration", "exported")
			m.ObserveRequest("GET", 200, time.Second)
		})
		assert.Nil(t, m.Registry())
		assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "unused.prom")))
	}
}

func TestMetrics_WriteTextfile(t *testing.T) {
	t.Parallel()

	m := NewMetrics(MetricsConfig{Enabled: true})
	m.WorkflowStarted("monitoring", "health_check")
	m.WorkflowCompleted("monitoring", "health_check", true, time.Second)

	path := filepath.Join(t.TempDir(), "oic.prom")
	require.NoError(t, m.WriteTextfile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `oic_devops_workflows_completed_total{family="monitoring",operation="health_check",status="success"} 1`)
}
