package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/WolVesz/oic-devops/internal/auth"
	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/internal/telemetry"
	"github.com/WolVesz/oic-devops/internal/workflow"
	"github.com/WolVesz/oic-devops/pkg/oic"
	"github.com/WolVesz/oic-devops/pkg/oicclient"
)

// environment is one resolved OIC instance plus the run-wide collaborators.
type environment struct {
	name    string
	profile *Profile
	client  oicclient.Client
	metrics *telemetry.Metrics
}

func (e *environment) Close() error {
	return e.client.Close()
}

// buildConfig translates a profile into client configuration.
func buildConfig(profile *Profile) (*oic.Config, error) {
	config := &oic.Config{
		BaseURL:        profile.BaseURL,
		IdentityDomain: profile.IdentityDomain,
		TokenURL:       profile.TokenURL,
		ClientID:       profile.ClientID,
		ClientSecret:   profile.ClientSecret,
		Scope:          profile.Scope,
		AccessToken:    profile.AccessToken,
		HTTPTimeout:    constants.DefaultHTTPTimeout,
		RetryMax:       constants.DefaultRetryMax,
		Debug:          viper.GetBool("verbose"),
		Logger:         newSlogAdapter(cliLogger),
		UserAgent:      constants.DefaultUserAgent,
		Cache:          profile.Cache,
	}

	if profile.Timeout != "" {
		timeout, err := time.ParseDuration(profile.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", profile.Timeout, err)
		}

		config.HTTPTimeout = timeout
	}

	if profile.RetryMax != nil {
		config.RetryMax = *profile.RetryMax
	}

	return config, nil
}

// cachedToken returns the token persisted with the profile, if any.
func cachedToken(profile *Profile) *auth.Token {
	if profile.CachedToken == "" {
		return nil
	}

	token := &auth.Token{AccessToken: profile.CachedToken, TokenType: "Bearer"}

	obtainedAt, err := time.Parse(time.RFC3339, profile.TokenObtainedAt)
	if err == nil {
		token.ObtainedAt = obtainedAt
	}

	return token
}

// openEnvironment resolves the named profile (empty for the current one) and
// connects to it. All environments of one run share metrics.
func openEnvironment(requested string, metrics *telemetry.Metrics) (*environment, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, err
	}

	name, profile, err := resolveProfile(config, requested)
	if err != nil {
		return nil, err
	}

	clientConfig, err := buildConfig(profile)
	if err != nil {
		return nil, err
	}

	opts := []oicclient.Option{}
	if metrics != nil {
		opts = append(opts, oicclient.WithRequestObserver(metrics))
	}

	client, err := oicclient.NewPersisting(clientConfig, NewConfigPersister(), name, cachedToken(profile), opts...)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", name, err)
	}

	return &environment{name: name, profile: profile, client: client, metrics: metrics}, nil
}

// deps returns the workflow dependencies of the environment.
func (e *environment) deps() (workflow.Deps, error) {
	deps := workflow.Deps{
		API:          e.client,
		Logger:       newSlogAdapter(cliLogger),
		Metrics:      e.metrics,
		Concurrency:  viper.GetInt("concurrency"),
		PollAttempts: e.profile.PollAttempts,
	}

	if e.profile.PollInterval != "" {
		interval, err := time.ParseDuration(e.profile.PollInterval)
		if err != nil {
			return workflow.Deps{}, fmt.Errorf("invalid poll_interval %q: %w", e.profile.PollInterval, err)
		}

		deps.PollInterval = interval
	}

	return deps, nil
}

// runMetrics returns a registry when --metrics-file asks for one.
func runMetrics() *telemetry.Metrics {
	if viper.GetString("metrics-file") == "" {
		return nil
	}

	return telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: true})
}

// runWorkflow executes command against the current profile and renders the
// result. build may open further environments through the run.
func runWorkflow(cmd *cobra.Command, family workflow.Family, build func(run *workflowRun) (workflow.Command, error)) error {
	// Arguments are parsed by now; failures below are not usage errors.
	cmd.SilenceUsage = true

	run := &workflowRun{metrics: runMetrics()}
	defer run.close()

	source, err := run.open("")
	if err != nil {
		return err
	}

	command, err := build(run)
	if err != nil {
		return err
	}

	deps, err := source.deps()
	if err != nil {
		return err
	}

	engine, err := workflow.New(family, deps)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result := engine.Execute(ctx, command)

	err = renderResult(cmd.OutOrStdout(), result)
	if err != nil {
		return err
	}

	if path := viper.GetString("metrics-file"); path != "" {
		err = run.metrics.WriteTextfile(path)
		if err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	if !result.Success {
		return fmt.Errorf("%w: %s", constants.ErrWorkflowFailed, result.Message)
	}

	return nil
}

// workflowRun tracks the environments opened by one command.
type workflowRun struct {
	metrics *telemetry.Metrics
	opened  []*environment
}

func (r *workflowRun) open(profile string) (*environment, error) {
	env, err := openEnvironment(profile, r.metrics)
	if err != nil {
		return nil, err
	}

	r.opened = append(r.opened, env)

	return env, nil
}

// target opens the environment named by --target-profile.
func (r *workflowRun) target(cmd *cobra.Command) (oic.API, error) {
	name, _ := cmd.Flags().GetString("target-profile")
	if name == "" {
		return nil, constants.ErrTargetProfileNeeded
	}

	env, err := r.open(name)
	if err != nil {
		return nil, err
	}

	return env.client, nil
}

func (r *workflowRun) close() {
	for _, env := range r.opened {
		err := env.Close()
		if err != nil {
			cliLogger.Warn("failed to close client", "profile", env.name, "error", err)
		}
	}
}
