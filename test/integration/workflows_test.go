//go:build integration

package integration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ReadOnlyWorkflowSuite runs workflows that leave the instance unchanged.
type ReadOnlyWorkflowSuite struct {
	suite.Suite
	runner *CommandRunner
}

func (s *ReadOnlyWorkflowSuite) SetupSuite() {
	config := LoadTestConfig()
	config.SkipIfMissingConfig(s.T())

	s.runner = NewCommandRunner(config, s.T())

	_, stderr, err := s.runner.Run("resources", "ping")
	s.Require().NoError(err, "instance not reachable: %s", stderr)
}

func (s *ReadOnlyWorkflowSuite) TestListIntegrations() {
	stdout, stderr, err := s.runner.Run("resources", "list", "integrations", "--output", "json")
	s.Require().NoError(err, stderr)
	AssertJSONOutput(s.T(), stdout)
}

func (s *ReadOnlyWorkflowSuite) TestHealthCheck() {
	result, err := s.runner.RunResult("monitor", "health")
	s.Require().NotNil(result, "no result: %v", err)
	s.Contains(result.Details, "overall_health")
}

func (s *ReadOnlyWorkflowSuite) TestConnectionBestPractices() {
	result, err := s.runner.RunResult("validate", "best-practices", "--scope", "connections")
	s.Require().NotNil(result, "no result: %v", err)
	s.Contains(result.Message, "Best practice validation")
}

func (s *ReadOnlyWorkflowSuite) TestLookupBackupAndPrune() {
	dir := s.T().TempDir()

	result, err := s.runner.RunResult("backup", "kind", "lookups", dir)
	s.Require().NoError(err)
	s.True(result.Success, result.Message)

	entries, readErr := os.ReadDir(dir)
	s.Require().NoError(readErr)
	s.Require().Len(entries, 1)

	_, statErr := os.Stat(filepath.Join(dir, entries[0].Name(), "backup_metadata.json"))
	s.NoError(statErr)

	result, err = s.runner.RunResult("backup", "prune", dir, "--retention-count", "1", "--dry-run")
	s.Require().NoError(err)
	s.True(result.Success, result.Message)
	s.InDelta(1, result.Details["backups_to_keep"], 0)
}

func TestReadOnlyWorkflowSuite(t *testing.T) {
	suite.Run(t, new(ReadOnlyWorkflowSuite))
}
