package workflow_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/internal/workflow"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

func TestParseOperation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		family  workflow.Family
		input   string
		want    workflow.Operation
		wantErr error
	}{
		{name: "dashes", family: workflow.FamilyBackup, input: "full-backup", want: workflow.OpFullBackup},
		{name: "underscores", family: workflow.FamilyIntegration, input: "bulk_activate", want: workflow.OpBulkActivate},
		{name: "mixed case", family: workflow.FamilyMonitoring, input: " Health-Check ", want: workflow.OpHealthCheck},
		{name: "other family", family: workflow.FamilyBackup, input: "health_check", wantErr: workflow.ErrUnknownOperation},
		{name: "unknown family", family: workflow.Family("nope"), input: "x", wantErr: workflow.ErrUnknownFamily},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			op, err := workflow.ParseOperation(tt.family, tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, op)
		})
	}
}

type bogusCommand struct{}

func (bogusCommand) Operation() workflow.Operation { return "bogus" }

func TestNew_EveryFamilyRejectsUnknownCommands(t *testing.T) {
	t.Parallel()

	families := []workflow.Family{
		workflow.FamilyBackup, workflow.FamilyDeployment, workflow.FamilyConnection,
		workflow.FamilyIntegration, workflow.FamilyMonitoring, workflow.FamilySchedule,
		workflow.FamilyValidation,
	}

	for _, family := range families {
		engine, err := workflow.New(family, testDeps(newFakeAPI()))
		require.NoError(t, err)
		assert.Equal(t, family, engine.Family())
		assert.NotEmpty(t, workflow.Operations(family))

		result := engine.Execute(context.Background(), bogusCommand{})
		assert.False(t, result.Success)
		assert.Contains(t, result.Message, "Unknown "+string(family)+" workflow operation: bogus")
		require.Len(t, result.Errors, 1)
	}

	_, err := workflow.New("nope", testDeps(newFakeAPI()))
	require.ErrorIs(t, err, workflow.ErrUnknownFamily)
}

func TestEngine_RequiresAPI(t *testing.T) {
	t.Parallel()

	engine := workflow.NewBackupEngine(workflow.Deps{})
	result := engine.Execute(context.Background(), workflow.FullBackup{DestDir: t.TempDir()})

	assert.False(t, result.Success)
	assert.Equal(t, "Cannot run backup workflow operation full_backup", result.Message)
	require.Len(t, result.Errors, 1)
}

func TestSanitizeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "Plain Name", want: "Plain Name"},
		{in: `a/b\c:d*e?f"g<h>i|j`, want: "a_b_c_d_e_f_g_h_i_j"},
		{in: strings.Repeat("x", 50), want: strings.Repeat("x", 50)},
		{in: strings.Repeat("y", 60), want: strings.Repeat("y", 47) + "..."},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, workflow.SanitizeName(tt.in))
	}
}

func TestDecideRetention_DailyBackups(t *testing.T) {
	t.Parallel()

	var artifacts []workflow.Artifact
	for day := range 12 {
		artifacts = append(artifacts, workflow.Artifact{
			Path:      fmt.Sprintf("oic_backup_%02d", day),
			Timestamp: fixedNow.AddDate(0, 0, -day),
			SizeBytes: 100,
		})
	}

	decision := workflow.DecideRetention(artifacts, workflow.RetentionPolicy{Days: 10, Count: 5}, fixedNow)

	// Five newest unconditionally, days 5 through 10 by age.
	assert.Len(t, decision.Keep, 11)
	require.Len(t, decision.Delete, 1)
	assert.Equal(t, "oic_backup_11", decision.Delete[0].Path)
	assert.Equal(t, int64(1100), decision.KeepBytes())
	assert.Equal(t, int64(100), decision.DeleteBytes())
}

func TestDecideRetention_FewerThanCount(t *testing.T) {
	t.Parallel()

	artifacts := []workflow.Artifact{
		{Path: "old", Timestamp: fixedNow.AddDate(-1, 0, 0)},
		{Path: "new", Timestamp: fixedNow},
	}

	decision := workflow.DecideRetention(artifacts, workflow.RetentionPolicy{Days: 1, Count: 5}, fixedNow)

	require.Len(t, decision.Keep, 2)
	assert.Equal(t, "new", decision.Keep[0].Path)
	assert.Empty(t, decision.Delete)
}

func TestScanArtifacts_ParsesNames(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "oic_backup_20240101_120000", "integrations"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "oic_selective_backup_20240102_120000.zip"), []byte("zip"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "oic_backup_20240103_120000.txt"), []byte("skip"), 0o600))

	artifacts, err := workflow.ScanArtifacts(dir)
	require.NoError(t, err)
	require.Len(t, artifacts, 2)

	byName := map[string]workflow.Artifact{}
	for _, artifact := range artifacts {
		byName[filepath.Base(artifact.Path)] = artifact
	}

	dirArtifact := byName["oic_backup_20240101_120000"]
	assert.True(t, dirArtifact.IsDirectory)
	assert.Equal(t, 2024, dirArtifact.Timestamp.Year())

	zipArtifact := byName["oic_selective_backup_20240102_120000.zip"]
	assert.False(t, zipArtifact.IsDirectory)
	assert.Equal(t, int64(3), zipArtifact.SizeBytes)
	assert.Equal(t, 2, zipArtifact.Timestamp.Day())
}

func TestIsBackupName(t *testing.T) {
	t.Parallel()

	assert.True(t, workflow.IsBackupName("oic_backup_20240101_000000"))
	assert.True(t, workflow.IsBackupName("oic_integrations_backup_20240101_000000.zip"))
	assert.False(t, workflow.IsBackupName("backup_20240101"))
	assert.False(t, workflow.IsBackupName("oic_my_label_backup_x"))
}

func TestExtractDependencies(t *testing.T) {
	t.Parallel()

	doc := oic.Object{
		"references": []interface{}{
			map[string]interface{}{"type": "CONNECTION", "id": "C1", "name": "Rest"},
			map[string]interface{}{"type": "LOOKUP", "id": "L1", "name": "Codes"},
			map[string]interface{}{"type": "OTHER", "id": "X"},
		},
		"triggers": []interface{}{map[string]interface{}{"connectionId": "C1"}},
		"invokes":  []interface{}{map[string]interface{}{"connectionId": "C2", "connectionName": "Soap"}},
	}

	deps := workflow.ExtractDependencies(doc)

	require.Len(t, deps.Connections, 2)
	assert.Equal(t, "C1", deps.Connections[0].ID)
	assert.Equal(t, "Soap", deps.Connections[1].Name)
	assert.Len(t, deps.Lookups, 1)
	assert.Empty(t, deps.Libraries)
	assert.Equal(t, map[string]int{"connections": 2, "lookups": 1, "libraries": 0, "total": 3}, deps.Counts())
	assert.True(t, deps.References("C2"))
	assert.False(t, deps.References("C3"))
}

func TestExtractDependencies_EmptyDocument(t *testing.T) {
	t.Parallel()

	deps := workflow.ExtractDependencies(oic.Object{})

	assert.Equal(t, 0, deps.Total())
	assert.NotNil(t, deps.Connections)
}

func TestResolver_DependentsSkipsUnreadable(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.integrations.add(
		oic.Object{"id": "I1", "name": "Uses", "status": constants.StatusActivated, "connections": []interface{}{"C1"}},
		oic.Object{"id": "I2", "name": "Other", "connections": []interface{}{"C9"}},
		oic.Object{"id": "I3", "name": "Broken"},
	)
	api.integrations.getErr["I3"] = errBoom

	dependents, failures, err := workflow.NewResolver(api.integrations, nil).Dependents(context.Background(), "C1", nil)
	require.NoError(t, err)

	require.Len(t, dependents, 1)
	assert.Equal(t, "I1", dependents[0].ID)
	assert.Equal(t, constants.StatusActivated, dependents[0].Status)
	assert.Contains(t, failures, "I3")
}

func TestResolver_DependentsReadLiveStatus(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.integrations.add(oic.Object{"id": "I1", "name": "Uses", "status": constants.StatusConfigured, "connections": []interface{}{"C1"}})
	api.integrations.cached["I1"] = oic.Object{"id": "I1", "name": "Uses", "status": constants.StatusActivated, "connections": []interface{}{"C1"}}

	dependents, failures, err := workflow.NewResolver(api.integrations, nil).Dependents(context.Background(), "C1", nil)
	require.NoError(t, err)
	assert.Empty(t, failures)

	require.Len(t, dependents, 1)
	assert.Equal(t, constants.StatusConfigured, dependents[0].Status)
	assert.Equal(t, 1, api.integrations.called("get:I1"))
}

func TestPollUntil(t *testing.T) {
	t.Parallel()

	t.Run("completes", func(t *testing.T) {
		t.Parallel()

		calls := 0
		outcome := workflow.PollUntil(context.Background(), func(context.Context) (bool, error) {
			calls++

			return calls == 3, nil
		}, 5, time.Millisecond, nil)

		assert.True(t, outcome.Completed)
		assert.Equal(t, 3, outcome.Attempts)
		assert.Equal(t, "Operation completed after 3 attempts", outcome.Message())
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		t.Parallel()

		outcome := workflow.PollUntil(context.Background(), func(context.Context) (bool, error) {
			return false, errBoom
		}, 2, time.Millisecond, nil)

		assert.False(t, outcome.Completed)
		assert.Equal(t, 2, outcome.Attempts)
		assert.NoError(t, outcome.Err)
		assert.Equal(t, workflow.PollTimeoutMessage, outcome.Message())
	})

	t.Run("terminal state", func(t *testing.T) {
		t.Parallel()

		outcome := workflow.PollUntil(context.Background(), func(context.Context) (bool, error) {
			return false, fmt.Errorf("%w: ERROR", workflow.ErrTerminalState)
		}, 5, time.Millisecond, nil)

		assert.Equal(t, 1, outcome.Attempts)
		assert.ErrorIs(t, outcome.Err, workflow.ErrTerminalState)
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		outcome := workflow.PollUntil(ctx, func(context.Context) (bool, error) {
			return false, nil
		}, 5, time.Hour, nil)

		assert.ErrorIs(t, outcome.Err, context.Canceled)
	})

	t.Run("non-positive interval", func(t *testing.T) {
		t.Parallel()

		for _, interval := range []time.Duration{0, -time.Second} {
			outcome := workflow.PollUntil(context.Background(), func(context.Context) (bool, error) {
				return true, nil
			}, 3, interval, nil)

			assert.True(t, outcome.Completed)
			assert.Equal(t, 1, outcome.Attempts)
		}
	})
}
