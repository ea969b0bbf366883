//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/WolVesz/oic-devops/pkg/oic"
)

// TestConfig holds configuration for integration tests
type TestConfig struct {
	BaseURL        string
	IdentityDomain string
	TokenURL       string
	ClientID       string
	ClientSecret   string
	Scope          string
	OICPath        string
	Verbose        bool
}

// LoadTestConfig loads configuration from environment variables
func LoadTestConfig() *TestConfig {
	return &TestConfig{
		BaseURL:        os.Getenv("OIC_TEST_BASE_URL"),
		IdentityDomain: os.Getenv("OIC_TEST_IDENTITY_DOMAIN"),
		TokenURL:       os.Getenv("OIC_TEST_TOKEN_URL"),
		ClientID:       os.Getenv("OIC_TEST_CLIENT_ID"),
		ClientSecret:   os.Getenv("OIC_TEST_CLIENT_SECRET"),
		Scope:          os.Getenv("OIC_TEST_SCOPE"),
		OICPath:        getOICPath(),
		Verbose:        os.Getenv("OIC_TEST_VERBOSE") == "true",
	}
}

// getOICPath determines the path to the oic binary
func getOICPath() string {
	if path := os.Getenv("OIC_BINARY_PATH"); path != "" {
		return path
	}

	for _, candidate := range []string{"../../oic", "./oic", "../oic"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "oic"
}

// SkipIfMissingConfig skips test if required config is missing
func (config *TestConfig) SkipIfMissingConfig(t *testing.T) {
	if config.BaseURL == "" || config.ClientID == "" || config.ClientSecret == "" {
		t.Skip("OIC_TEST_BASE_URL and client credentials not set, skipping integration test")
	}

	if _, err := exec.LookPath(config.OICPath); err != nil {
		t.Skipf("oic binary not found at %s, skipping integration test", config.OICPath)
	}
}

// CommandRunner runs the oic binary against a throwaway config file.
type CommandRunner struct {
	config     *TestConfig
	configFile string
	t          *testing.T
}

// NewCommandRunner writes a one-profile config file and returns a runner using it.
func NewCommandRunner(config *TestConfig, t *testing.T) *CommandRunner {
	t.Helper()

	document := map[string]interface{}{
		"current_profile": "integration",
		"profiles": map[string]interface{}{
			"integration": map[string]interface{}{
				"base_url":        config.BaseURL,
				"identity_domain": config.IdentityDomain,
				"token_url":       config.TokenURL,
				"client_id":       config.ClientID,
				"client_secret":   config.ClientSecret,
				"scope":           config.Scope,
			},
		},
	}

	data, err := yaml.Marshal(document)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return &CommandRunner{config: config, configFile: path, t: t}
}

// Run executes an oic command and returns output
func (runner *CommandRunner) Run(args ...string) (stdout, stderr string, err error) {
	args = append([]string{"--config", runner.configFile, "--no-color"}, args...)

	// #nosec G204 -- the binary path comes from the test environment
	cmd := exec.Command(runner.config.OICPath, args...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	if runner.config.Verbose {
		runner.t.Logf("Running: %s %s", runner.config.OICPath, strings.Join(args, " "))
	}

	err = cmd.Run()
	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if runner.config.Verbose && err != nil {
		runner.t.Logf("Command failed: %v\nStdout: %s\nStderr: %s", err, stdout, stderr)
	}

	return stdout, stderr, err
}

// RunResult executes a workflow command with JSON output and decodes its result.
func (runner *CommandRunner) RunResult(args ...string) (*oic.WorkflowResult, error) {
	stdout, stderr, err := runner.Run(append(args, "--output", "json")...)

	result := &oic.WorkflowResult{}

	decodeErr := json.Unmarshal([]byte(stdout), result)
	if decodeErr != nil {
		return nil, fmt.Errorf("decoding result: %w (stderr: %s)", decodeErr, stderr)
	}

	return result, err
}

// AssertJSONOutput verifies command output is valid JSON
func AssertJSONOutput(t *testing.T, output string) {
	t.Helper()

	require.True(t, json.Valid([]byte(strings.TrimSpace(output))), "Output does not appear to be JSON: %s", output)
}
