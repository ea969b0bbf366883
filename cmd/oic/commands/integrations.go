package commands

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/internal/workflow"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

// NewIntegrationsCommand creates the integrations command group.
func NewIntegrationsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "integrations",
		Aliases: []string{"integration", "int"},
		Short:   "Manage integration lifecycles",
		Long:    "Activate, deactivate and restart integrations, manage their schedules and trace their runs",
	}

	cmd.AddCommand(newIntegrationsActivateCommand())
	cmd.AddCommand(newIntegrationsDeactivateCommand())
	cmd.AddCommand(newIntegrationsRestartCommand())
	cmd.AddCommand(newIntegrationsScheduleCommand())
	cmd.AddCommand(newIntegrationsDependenciesCommand())
	cmd.AddCommand(newIntegrationsTraceCommand())

	return cmd
}

// bulkOptions are the flags shared by activate and deactivate.
type bulkOptions struct {
	query           string
	continueOnError bool
	verify          bool
	sequential      bool
	wait            time.Duration
}

func (o *bulkOptions) register(flags *pflag.FlagSet) {
	flags.StringVarP(&o.query, "query", "q", "", "select integrations by OIC query instead of ids")
	flags.BoolVar(&o.continueOnError, "continue-on-error", true, "keep going after a failure")
	flags.BoolVar(&o.verify, "verify", false, "poll until each integration reaches the expected status")
	flags.BoolVar(&o.sequential, "sequential", false, "process integrations one at a time")
	flags.DurationVar(&o.wait, "wait", 0, "pause between sequential integrations")
}

func newIntegrationsActivateCommand() *cobra.Command {
	var opts bulkOptions

	cmd := &cobra.Command{
		Use:   "activate [INTEGRATION_ID...]",
		Short: "Activate integrations",
		Long:  "Activate the given integrations, or every configured integration matching --query",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, workflow.FamilyIntegration, func(*workflowRun) (workflow.Command, error) {
				return workflow.BulkActivate{
					IDs:             args,
					Query:           opts.query,
					ContinueOnError: opts.continueOnError,
					Verify:          opts.verify,
					Sequential:      opts.sequential,
					Wait:            opts.wait,
				}, nil
			})
		},
	}

	opts.register(cmd.Flags())

	return cmd
}

func newIntegrationsDeactivateCommand() *cobra.Command {
	var opts bulkOptions

	cmd := &cobra.Command{
		Use:   "deactivate [INTEGRATION_ID...]",
		Short: "Deactivate integrations",
		Long:  "Deactivate the given integrations, or every active integration matching --query",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, workflow.FamilyIntegration, func(*workflowRun) (workflow.Command, error) {
				return workflow.BulkDeactivate{
					IDs:             args,
					Query:           opts.query,
					ContinueOnError: opts.continueOnError,
					Verify:          opts.verify,
					Sequential:      opts.sequential,
					Wait:            opts.wait,
				}, nil
			})
		},
	}

	opts.register(cmd.Flags())

	return cmd
}

func newIntegrationsRestartCommand() *cobra.Command {
	var command workflow.RestartIntegration

	cmd := &cobra.Command{
		Use:   "restart INTEGRATION_ID",
		Short: "Restart an integration",
		Long:  "Deactivate an integration and activate it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command.ID = args[0]

			return runWorkflow(cmd, workflow.FamilyIntegration, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	cmd.Flags().BoolVar(&command.Verify, "verify", true, "poll until the integration is active again")
	cmd.Flags().DurationVar(&command.Wait, "wait", constants.DefaultRestartWait, "pause between deactivation and activation")

	return cmd
}

func newIntegrationsScheduleCommand() *cobra.Command {
	var (
		command workflow.ManageSchedules
		file    string
	)

	cmd := &cobra.Command{
		Use:       "schedule ACTION [INTEGRATION_ID...]",
		Short:     "Enable, disable or update schedules",
		Long:      "Change the schedule of scheduled integrations. ACTION is enable, disable or update.",
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: []string{workflow.ScheduleEnable, workflow.ScheduleDisable, workflow.ScheduleUpdate},
		RunE: func(cmd *cobra.Command, args []string) error {
			command.Action = args[0]
			command.IDs = args[1:]

			if file != "" {
				data := oic.Object{}

				err := loadDocument(file, &data)
				if err != nil {
					return err
				}

				command.ScheduleData = data
			}

			return runWorkflow(cmd, workflow.FamilyIntegration, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	cmd.Flags().StringVarP(&command.Query, "query", "q", "", "select integrations by OIC query instead of ids")
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML or JSON schedule definition for update")
	cmd.Flags().BoolVar(&command.ContinueOnError, "continue-on-error", true, "keep going after a failure")

	return cmd
}

func newIntegrationsDependenciesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dependencies INTEGRATION_ID",
		Short: "List what an integration uses",
		Long:  "List the connections, lookups and libraries an integration references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, workflow.FamilyIntegration, func(*workflowRun) (workflow.Command, error) {
				return workflow.FindDependencies{ID: args[0]}, nil
			})
		},
	}
}

func newIntegrationsTraceCommand() *cobra.Command {
	var (
		command    workflow.TraceInstances
		start, end string
	)

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Trace integration runs",
		Long:  "Collect run instances, optionally with their activity stream and payloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error

			command.Start, command.End, err = parseTimeRange(start, end)
			if err != nil {
				return err
			}

			return runWorkflow(cmd, workflow.FamilyIntegration, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	cmd.Flags().StringVar(&command.IntegrationID, "integration", "", "only runs of this integration")
	cmd.Flags().StringVar(&command.InstanceID, "instance", "", "trace one instance, other filters are ignored")
	cmd.Flags().StringVar(&command.Status, "status", "", "only runs with this status")
	cmd.Flags().StringVar(&start, "start", "", "earliest run time (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "latest run time (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().BoolVar(&command.IncludeActivities, "activities", false, "include the activity stream")
	cmd.Flags().BoolVar(&command.IncludePayloads, "payloads", false, "include request and response payloads")
	cmd.Flags().IntVar(&command.MaxInstances, "max", 10, "maximum number of instances")

	return cmd
}
