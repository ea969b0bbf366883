package workflow_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/internal/workflow"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

func TestDeployment_ExportIntegrationWithDependencies(t *testing.T) {
	t.Parallel()

	api := seededAPI()
	api.integrations.add(oic.Object{
		"id":   "I2",
		"name": "Uses Things",
		"references": []interface{}{
			map[string]interface{}{"type": "CONNECTION", "id": "C1", "name": "Rest Conn"},
			map[string]interface{}{"type": "LOOKUP", "id": "L1", "name": "Codes"},
		},
	})

	dest := filepath.Join(t.TempDir(), "out", "I2.zip")

	result := workflow.NewDeploymentEngine(testDeps(api)).Execute(context.Background(), workflow.ExportIntegration{
		ID:                  "I2",
		DestPath:            dest,
		IncludeDependencies: true,
	})
	require.True(t, result.Success, result.Message)

	assert.Equal(t, "Exported integration Uses Things and 2 dependencies", result.Message)
	assert.FileExists(t, dest)
	assert.FileExists(t, filepath.Join(filepath.Dir(dest), "dependencies", "connections", "C1_Rest Conn.json"))
	assert.FileExists(t, filepath.Join(filepath.Dir(dest), "dependencies", "lookups", "L1_Codes.csv"))
	assert.Equal(t, "export_integration", result.Details["operation"])
}

func TestDeployment_ExportRefusesExistingFile(t *testing.T) {
	t.Parallel()

	dest := filepath.Join(t.TempDir(), "I1.zip")
	require.NoError(t, os.WriteFile(dest, []byte("old"), 0o600))

	engine := workflow.NewDeploymentEngine(testDeps(seededAPI()))

	result := engine.Execute(context.Background(), workflow.ExportIntegration{ID: "I1", DestPath: dest})
	assert.False(t, result.Success)
	assert.Equal(t, "Export file "+dest+" already exists and overwrite is not set", result.Message)

	result = engine.Execute(context.Background(), workflow.ExportIntegration{ID: "I1", DestPath: dest, Overwrite: true})
	require.True(t, result.Success, result.Message)
	assert.Equal(t, "Successfully exported integration Order Sync to "+dest, result.Message)
}

func TestDeployment_ImportIntegration(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	file := filepath.Join(t.TempDir(), "I9.zip")
	require.NoError(t, os.WriteFile(file, []byte("archive:I9"), 0o600))

	result := workflow.NewDeploymentEngine(testDeps(api)).Execute(context.Background(), workflow.ImportIntegration{
		FilePath:      file,
		ConnectionMap: map[string]string{"SRC": "DST"},
	})
	require.True(t, result.Success, result.Message)

	assert.Equal(t, "Successfully imported integration I9", result.Message)
	require.Len(t, api.integrations.imported, 1)
	assert.Equal(t, "false", api.integrations.imported[0]["overwrite"])
	assert.JSONEq(t, `{"connectionMap":{"SRC":"DST"}}`, api.integrations.imported[0]["importPlan"])
}

func TestDeployment_ImportFailures(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	engine := workflow.NewDeploymentEngine(testDeps(api))

	missing := filepath.Join(t.TempDir(), "missing.par")
	result := engine.Execute(context.Background(), workflow.ImportPackage{FilePath: missing})
	assert.False(t, result.Success)
	assert.Equal(t, "Import file "+missing+" does not exist", result.Message)

	file := filepath.Join(t.TempDir(), "P1.par")
	require.NoError(t, os.WriteFile(file, []byte("archive:P1"), 0o600))

	api.packages.importErr = errBoom
	result = engine.Execute(context.Background(), workflow.ImportPackage{FilePath: file})
	assert.False(t, result.Success)
	assert.Equal(t, "Failed to import package from "+file, result.Message)
}

func TestDeployment_PromoteAndActivate(t *testing.T) {
	t.Parallel()

	source := seededAPI()
	target := newFakeAPI()

	result := workflow.NewDeploymentEngine(testDeps(source)).Execute(context.Background(), workflow.PromoteIntegration{
		ID:       "I1",
		Target:   target,
		Activate: true,
	})
	require.True(t, result.Success, result.Message)

	assert.Equal(t, "Successfully promoted and activated integration Order Sync", result.Message)
	assert.Equal(t, "success", result.Details["activation_status"])
	assert.Equal(t, constants.StatusActivated, target.integrations.item("I1").Status())
	assert.Equal(t, 0, source.integrations.called("activate:I1"))
}

func TestDeployment_PromoteNeedsTarget(t *testing.T) {
	t.Parallel()

	result := workflow.NewDeploymentEngine(testDeps(seededAPI())).Execute(context.Background(), workflow.PromoteIntegration{ID: "I1"})

	assert.False(t, result.Success)
	assert.Equal(t, "No target environment given", result.Message)
}

func TestDeployment_PromoteReportsActivationFailure(t *testing.T) {
	t.Parallel()

	target := newFakeAPI()
	target.integrations.updateErr["I1"] = errBoom

	result := workflow.NewDeploymentEngine(testDeps(seededAPI())).Execute(context.Background(), workflow.PromoteIntegration{
		ID:       "I1",
		Target:   target,
		Activate: true,
	})

	assert.False(t, result.Success)
	assert.Equal(t, "Integration promoted but activation failed in target environment", result.Message)
	assert.Equal(t, "error", result.Details["activation_status"])
}

func TestDeployment_ExportPackage(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.packages.add(oic.Object{"id": "P1", "name": "Finance"})

	dest := filepath.Join(t.TempDir(), "P1.par")

	result := workflow.NewDeploymentEngine(testDeps(api)).Execute(context.Background(), workflow.ExportPackage{ID: "P1", DestPath: dest})
	require.True(t, result.Success, result.Message)
	assert.Equal(t, "Successfully exported package Finance to "+dest, result.Message)
	assert.Equal(t, "Finance", result.Details["package_name"])
}

func TestDeployment_CloneEnvironment(t *testing.T) {
	t.Parallel()

	source := seededAPI()
	source.integrations.add(integration("I2", "Skip Me", constants.StatusConfigured))
	target := newFakeAPI()

	result := workflow.NewDeploymentEngine(testDeps(source)).Execute(context.Background(), workflow.CloneEnvironment{
		Target:              target,
		Exclude:             map[oic.ResourceKind]string{oic.KindIntegration: "Skip"},
		ActivateIntegration: true,
	})
	require.True(t, result.Success, result.Message)

	assert.Equal(t, "Successfully cloned 1/1 connections, 1/1 lookups, 1/1 integrations and activated 1 integrations", result.Message)
	assert.Equal(t, 1, result.Details["activated"])
	assert.Equal(t, 1, target.connections.called("create"))
	assert.Equal(t, constants.StatusActivated, target.integrations.item("I1").Status())
	assert.Empty(t, target.integrations.item("I2"))
}

func TestDeployment_CloneCountsFailures(t *testing.T) {
	t.Parallel()

	source := seededAPI()
	source.lookups.exportErr["L1"] = errBoom

	result := workflow.NewDeploymentEngine(testDeps(source)).Execute(context.Background(), workflow.CloneEnvironment{
		Target: newFakeAPI(),
		Kinds:  []oic.ResourceKind{oic.KindConnection, oic.KindLookup},
	})

	assert.False(t, result.Success)
	assert.Equal(t, "Cloned 1/1 connections, but 1 resources failed", result.Message)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "L1", result.Errors[0].ResourceID)
}
