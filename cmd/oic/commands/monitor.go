package commands

import (
	"github.com/spf13/cobra"

	"github.com/WolVesz/oic-devops/internal/workflow"
)

// NewMonitorCommand creates the monitor command group.
func NewMonitorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "monitor",
		Aliases: []string{"monitoring", "mon"},
		Short:   "Monitor integration health",
		Long:    "Check instance health, analyze errors, collect performance metrics, purge runs and write reports",
	}

	cmd.AddCommand(newMonitorHealthCommand())
	cmd.AddCommand(newMonitorErrorsCommand())
	cmd.AddCommand(newMonitorMetricsCommand())
	cmd.AddCommand(newMonitorPurgeCommand())
	cmd.AddCommand(newMonitorReportCommand())

	return cmd
}

func newMonitorHealthCommand() *cobra.Command {
	var (
		command          workflow.HealthCheck
		skipIntegrations bool
		skipConnections  bool
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check instance health",
		Long:  "Summarize integration and connection states and flag a degraded instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			command.CheckIntegrations = !skipIntegrations
			command.CheckConnections = !skipConnections

			return runWorkflow(cmd, workflow.FamilyMonitoring, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	cmd.Flags().BoolVar(&skipIntegrations, "skip-integrations", false, "do not check integrations")
	cmd.Flags().BoolVar(&skipConnections, "skip-connections", false, "do not check connections")
	cmd.Flags().BoolVar(&command.TestConnections, "test-connections", false, "run a live test per connection")
	cmd.Flags().StringVar(&command.IntegrationQuery, "integration-query", "", "OIC query for integrations")
	cmd.Flags().StringVar(&command.ConnectionQuery, "connection-query", "", "OIC query for connections")

	return cmd
}

func newMonitorErrorsCommand() *cobra.Command {
	var (
		command    workflow.AnalyzeErrors
		start, end string
	)

	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Analyze failed runs",
		Long:  "Group recent errors by integration, error type or day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error

			command.Start, command.End, err = parseTimeRange(start, end)
			if err != nil {
				return err
			}

			return runWorkflow(cmd, workflow.FamilyMonitoring, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "window start (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "window end (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&command.IntegrationID, "integration", "", "only errors of this integration")
	cmd.Flags().StringVar(&command.ErrorType, "error-type", "", "only errors of this type")
	cmd.Flags().StringVar(&command.GroupBy, "group-by", workflow.GroupByIntegration, "integration, error_type or time")
	cmd.Flags().StringVar(&command.ReportFile, "report-file", "", "write the analysis as JSON")

	return cmd
}

func newMonitorMetricsCommand() *cobra.Command {
	var (
		command    workflow.PerformanceMetrics
		start, end string
	)

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Collect performance metrics",
		Long:  "Collect run counts, error rates and run durations per interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error

			command.Start, command.End, err = parseTimeRange(start, end)
			if err != nil {
				return err
			}

			return runWorkflow(cmd, workflow.FamilyMonitoring, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "window start (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "window end (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&command.IntegrationID, "integration", "", "only runs of this integration")
	cmd.Flags().StringVar(&command.Interval, "interval", "day", "hour, day, week or month")
	cmd.Flags().StringSliceVar(&command.Metrics, "metrics", nil, "counts, errors, durations (default all)")
	cmd.Flags().StringVar(&command.ReportFile, "report-file", "", "write the metrics as JSON")

	return cmd
}

func newMonitorPurgeCommand() *cobra.Command {
	var (
		command    workflow.PurgeInstances
		start, end string
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Purge run instances",
		Long:  "Delete tracked run instances in batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error

			command.Start, command.End, err = parseTimeRange(start, end)
			if err != nil {
				return err
			}

			return runWorkflow(cmd, workflow.FamilyMonitoring, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	cmd.Flags().StringVar(&command.IntegrationID, "integration", "", "only runs of this integration")
	cmd.Flags().StringVar(&command.Status, "status", "", "only runs with this status")
	cmd.Flags().StringVar(&start, "start", "", "window start (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "window end (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().BoolVar(&command.DryRun, "dry-run", false, "count the instances without purging")
	cmd.Flags().IntVar(&command.BatchSize, "batch-size", 100, "instances per purge request")

	return cmd
}

func newMonitorReportCommand() *cobra.Command {
	var (
		command    workflow.GenerateReport
		start, end string
	)

	cmd := &cobra.Command{
		Use:   "report REPORT_FILE",
		Short: "Write a monitoring report",
		Long:  "Write a full, errors, performance or usage report as JSON or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error

			command.ReportFile = args[0]

			command.Start, command.End, err = parseTimeRange(start, end)
			if err != nil {
				return err
			}

			return runWorkflow(cmd, workflow.FamilyMonitoring, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	cmd.Flags().StringVar(&command.Type, "type", workflow.ReportFull, "full, errors, performance or usage")
	cmd.Flags().StringVar(&command.Format, "format", workflow.FormatJSON, "json or csv")
	cmd.Flags().StringVar(&start, "start", "", "window start (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "window end (RFC3339 or YYYY-MM-DD)")

	return cmd
}
