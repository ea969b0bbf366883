package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/internal/workflow"
)

// NewConnectionsCommand creates the connections command group.
func NewConnectionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connections",
		Aliases: []string{"connection", "conn"},
		Short:   "Manage connections",
		Long:    "Test connections, rotate their credentials and find the integrations that use them",
	}

	cmd.AddCommand(newConnectionsTestCommand())
	cmd.AddCommand(newConnectionsUpdateCredentialsCommand())
	cmd.AddCommand(newConnectionsDependentsCommand())

	return cmd
}

func newConnectionsTestCommand() *cobra.Command {
	var command workflow.TestConnections

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test connections",
		Long:  "Run the connection test of every connection matching the query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, workflow.FamilyConnection, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	cmd.Flags().StringVarP(&command.Query, "query", "q", "", "OIC query filter")
	cmd.Flags().BoolVar(&command.ContinueOnError, "continue-on-error", true, "keep testing after a failure")

	return cmd
}

func newConnectionsUpdateCredentialsCommand() *cobra.Command {
	var (
		pairs      []string
		file       string
		test       bool
		restart    string
		sequential bool
		verify     bool
		wait       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "update-credentials CONNECTION_ID",
		Short: "Rotate connection credentials",
		Long: `Replace credential values of a connection. With --restart the integrations
using the connection are deactivated and activated again afterwards.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			credentials, err := parseCredentials(pairs)
			if err != nil {
				return err
			}

			if file != "" {
				fromFile := map[string]interface{}{}

				err = loadDocument(file, &fromFile)
				if err != nil {
					return err
				}

				for key, value := range fromFile {
					if _, set := credentials[key]; !set {
						credentials[key] = value
					}
				}
			}

			if len(credentials) == 0 {
				return constants.ErrInvalidCredential
			}

			return runWorkflow(cmd, workflow.FamilyConnection, func(*workflowRun) (workflow.Command, error) {
				if restart == "" {
					return workflow.UpdateCredentials{ConnectionID: args[0], Credentials: credentials, Test: test}, nil
				}

				return workflow.UpdateCredentialsAndRestart{
					ConnectionID:  args[0],
					Credentials:   credentials,
					RestartScope:  restart,
					Sequential:    sequential,
					VerifyRestart: verify,
					Wait:          wait,
				}, nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&pairs, "set", nil, "KEY=VALUE credential to replace")
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML or JSON file of credential values")
	cmd.Flags().BoolVar(&test, "test", true, "test the connection after the update")
	cmd.Flags().StringVar(&restart, "restart", "", "restart dependent integrations (all, active, none)")
	cmd.Flags().BoolVar(&sequential, "sequential", true, "restart integrations one at a time")
	cmd.Flags().BoolVar(&verify, "verify", true, "wait until each restarted integration is active")
	cmd.Flags().DurationVar(&wait, "wait", constants.DefaultRestartWait, "pause between sequential restarts")

	return cmd
}

func newConnectionsDependentsCommand() *cobra.Command {
	var command workflow.FindDependents

	cmd := &cobra.Command{
		Use:   "dependents CONNECTION_ID",
		Short: "List integrations using a connection",
		Long:  "Find every integration whose definition references the connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command.ConnectionID = args[0]

			return runWorkflow(cmd, workflow.FamilyConnection, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	cmd.Flags().BoolVar(&command.ActiveOnly, "active-only", false, "only list activated integrations")

	return cmd
}
