package commands

import (
	"github.com/spf13/cobra"

	"github.com/WolVesz/oic-devops/internal/workflow"
)

// NewValidateCommand creates the validate command group.
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "validate",
		Aliases: []string{"validation", "lint"},
		Short:   "Validate resources against conventions",
		Long:    "Check connections and integrations, best practices and naming conventions",
	}

	cmd.AddCommand(newValidateConnectionsCommand())
	cmd.AddCommand(newValidateIntegrationsCommand())
	cmd.AddCommand(newValidateBestPracticesCommand())
	cmd.AddCommand(newValidateNamingCommand())

	return cmd
}

func newValidateConnectionsCommand() *cobra.Command {
	var command workflow.ValidateConnections

	cmd := &cobra.Command{
		Use:   "connections [CONNECTION_ID...]",
		Short: "Validate connections",
		Long:  "Check connection configuration, credentials and naming, optionally with a live test",
		RunE: func(cmd *cobra.Command, args []string) error {
			command.IDs = args

			return runWorkflow(cmd, workflow.FamilyValidation, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	cmd.Flags().StringVarP(&command.Query, "query", "q", "", "select connections by OIC query")
	cmd.Flags().BoolVar(&command.Test, "test", false, "run a live test per connection")
	cmd.Flags().BoolVar(&command.ValidateNaming, "naming", true, "check names against --pattern")
	cmd.Flags().StringVar(&command.NamingPattern, "pattern", workflow.DefaultNamingPattern, "naming regular expression")
	cmd.Flags().BoolVar(&command.ContinueOnError, "continue-on-error", true, "keep going after a failure")

	return cmd
}

func newValidateIntegrationsCommand() *cobra.Command {
	var (
		command   workflow.ValidateIntegrations
		rulesFile string
	)

	cmd := &cobra.Command{
		Use:   "integrations [INTEGRATION_ID...]",
		Short: "Validate integrations",
		Long:  "Check naming, documentation, versioning, error handling, logging and activity of integrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			command.IDs = args

			if rulesFile != "" {
				rules := workflow.DefaultIntegrationRules()

				err := loadDocument(rulesFile, &rules)
				if err != nil {
					return err
				}

				command.Rules = &rules
			}

			return runWorkflow(cmd, workflow.FamilyValidation, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	cmd.Flags().StringVarP(&command.Query, "query", "q", "", "select integrations by OIC query")
	cmd.Flags().StringVar(&rulesFile, "rules", "", "YAML or JSON rules file")
	cmd.Flags().BoolVar(&command.ContinueOnError, "continue-on-error", true, "keep going after a failure")

	return cmd
}

func newValidateBestPracticesCommand() *cobra.Command {
	var (
		command   workflow.BestPractices
		rulesFile string
	)

	cmd := &cobra.Command{
		Use:   "best-practices",
		Short: "Check best practices",
		Long:  "Score integrations, connections, lookups and the instance against best practice checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rulesFile != "" {
				rules := workflow.DefaultPracticeRules()

				err := loadDocument(rulesFile, &rules)
				if err != nil {
					return err
				}

				command.Rules = &rules
			}

			return runWorkflow(cmd, workflow.FamilyValidation, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	cmd.Flags().StringVar(&command.Scope, "scope", workflow.ScopeAll, "all, integrations, connections, lookups or instance")
	cmd.Flags().StringVar(&rulesFile, "rules", "", "YAML or JSON rules file")

	return cmd
}

func newValidateNamingCommand() *cobra.Command {
	var (
		command  workflow.NamingConventions
		kinds    []string
		patterns []string
	)

	cmd := &cobra.Command{
		Use:   "naming",
		Short: "Check naming conventions",
		Long:  "Check resource names against per-kind patterns and optionally rename offenders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error

			command.Kinds, err = parseKinds(kinds)
			if err != nil {
				return err
			}

			command.Patterns, err = parseKindPatterns(patterns)
			if err != nil {
				return err
			}

			return runWorkflow(cmd, workflow.FamilyValidation, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&kinds, "kinds", nil, "kinds to check (default connections, integrations, lookups)")
	cmd.Flags().StringSliceVar(&patterns, "pattern", nil, "KIND=REGEX naming pattern override")
	cmd.Flags().BoolVar(&command.AutoRename, "auto-rename", false, "rename offenders to the suggested name")
	cmd.Flags().BoolVar(&command.ContinueOnError, "continue-on-error", true, "keep going after a failed rename")

	return cmd
}
