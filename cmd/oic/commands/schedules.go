package commands

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/WolVesz/oic-devops/internal/workflow"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

// NewSchedulesCommand creates the schedules command group.
func NewSchedulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedules",
		Aliases: []string{"schedule", "sched"},
		Short:   "Manage integration schedules",
		Long:    "Update, export, import, validate and list the schedules of scheduled integrations",
	}

	cmd.AddCommand(newSchedulesUpdateCommand())
	cmd.AddCommand(newSchedulesExportCommand())
	cmd.AddCommand(newSchedulesImportCommand())
	cmd.AddCommand(newSchedulesValidateCommand())
	cmd.AddCommand(newSchedulesListCommand())

	return cmd
}

func newSchedulesUpdateCommand() *cobra.Command {
	var command workflow.UpdateSchedules

	cmd := &cobra.Command{
		Use:   "update FILE",
		Short: "Update schedules from a file",
		Long:  "Apply a YAML or JSON map of integration id (or identifier) to schedule definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			updates := map[string]oic.Object{}

			err := loadDocument(args[0], &updates)
			if err != nil {
				return err
			}

			command.Updates = updates

			return runWorkflow(cmd, workflow.FamilySchedule, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	cmd.Flags().BoolVar(&command.ByIdentifier, "by-identifier", false, "keys are integration identifiers, not ids")
	cmd.Flags().BoolVar(&command.ContinueOnError, "continue-on-error", true, "keep going after a failure")

	return cmd
}

func newSchedulesExportCommand() *cobra.Command {
	var command workflow.ExportSchedules

	cmd := &cobra.Command{
		Use:   "export FILE [INTEGRATION_ID...]",
		Short: "Export schedules",
		Long:  "Write the schedules of scheduled integrations as JSON, YAML or CSV",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command.File = args[0]
			command.IDs = args[1:]

			if command.Format == "" {
				command.Format = formatFromExtension(command.File)
			}

			return runWorkflow(cmd, workflow.FamilySchedule, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	cmd.Flags().StringVarP(&command.Query, "query", "q", "", "select integrations by OIC query")
	cmd.Flags().StringVar(&command.Format, "format", "", "json, yaml or csv (default from the file extension)")

	return cmd
}

func newSchedulesImportCommand() *cobra.Command {
	var command workflow.ImportSchedules

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import schedules",
		Long:  "Apply the schedules of a file written by export to the matching integrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command.File = args[0]

			return runWorkflow(cmd, workflow.FamilySchedule, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	cmd.Flags().StringVar(&command.MatchBy, "match-by", workflow.MatchByID, "id, identifier or name")
	cmd.Flags().BoolVar(&command.ContinueOnError, "continue-on-error", true, "keep going after a failure")
	cmd.Flags().BoolVar(&command.DryRun, "dry-run", false, "report the changes without applying them")

	return cmd
}

func newSchedulesValidateCommand() *cobra.Command {
	var (
		command   workflow.ValidateSchedules
		rulesFile string
	)

	cmd := &cobra.Command{
		Use:   "validate [INTEGRATION_ID...]",
		Short: "Validate schedules",
		Long:  "Check schedules against allowed times, days, frequency and concurrency rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			command.IDs = args

			if rulesFile != "" {
				rules := workflow.DefaultScheduleRules()

				err := loadDocument(rulesFile, &rules)
				if err != nil {
					return err
				}

				command.Rules = &rules
			}

			return runWorkflow(cmd, workflow.FamilySchedule, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	cmd.Flags().StringVarP(&command.Query, "query", "q", "", "select integrations by OIC query")
	cmd.Flags().StringVar(&rulesFile, "rules", "", "YAML or JSON rules file")

	return cmd
}

func newSchedulesListCommand() *cobra.Command {
	var command workflow.ListSchedules

	cmd := &cobra.Command{
		Use:   "list [INTEGRATION_ID...]",
		Short: "List schedules",
		Long:  "List the schedules of scheduled integrations, optionally grouped",
		RunE: func(cmd *cobra.Command, args []string) error {
			command.IDs = args

			return runWorkflow(cmd, workflow.FamilySchedule, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	cmd.Flags().StringVarP(&command.Query, "query", "q", "", "select integrations by OIC query")
	cmd.Flags().BoolVar(&command.IncludeDisabled, "include-disabled", false, "include integrations that are not active")
	cmd.Flags().StringVar(&command.GroupBy, "group-by", workflow.ScheduleGroupNone, "none, time, day or frequency")

	return cmd
}

func formatFromExtension(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return workflow.FormatYAML
	case ".csv":
		return workflow.FormatCSV
	default:
		return workflow.FormatJSON
	}
}
