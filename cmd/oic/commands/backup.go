package commands

import (
	"github.com/spf13/cobra"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/internal/workflow"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

// NewBackupCommand creates the backup command group.
func NewBackupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up and restore OIC resources",
		Long:  "Export resources to a backup directory or zip archive, restore them and prune old backups",
	}

	cmd.AddCommand(newBackupFullCommand())
	cmd.AddCommand(newBackupSelectiveCommand())
	cmd.AddCommand(newBackupKindCommand())
	cmd.AddCommand(newBackupRestoreCommand())
	cmd.AddCommand(newBackupPruneCommand())

	return cmd
}

func newBackupFullCommand() *cobra.Command {
	var command workflow.FullBackup

	cmd := &cobra.Command{
		Use:   "full DEST_DIR",
		Short: "Back up every resource",
		Long:  "Export all integrations, connections, lookups and libraries, and optionally packages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command.DestDir = args[0]

			return runWorkflow(cmd, workflow.FamilyBackup, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	cmd.Flags().BoolVar(&command.IncludePackages, "include-packages", false, "also export packages")
	cmd.Flags().BoolVar(&command.Compress, "compress", false, "zip the backup directory")
	cmd.Flags().BoolVar(&command.ContinueOnError, "continue-on-error", true, "keep going after a failed export")

	return cmd
}

func newBackupSelectiveCommand() *cobra.Command {
	var (
		command workflow.SelectiveBackup
		ids     = map[oic.ResourceKind]*[]string{}
	)

	cmd := &cobra.Command{
		Use:   "selective DEST_DIR",
		Short: "Back up selected resources",
		Long:  "Export only the resources whose ids are given per kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command.DestDir = args[0]
			command.IDs = map[oic.ResourceKind][]string{}

			for kind, list := range ids {
				if len(*list) > 0 {
					command.IDs[kind] = *list
				}
			}

			return runWorkflow(cmd, workflow.FamilyBackup, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	for _, kind := range oic.BackupKinds {
		ids[kind] = cmd.Flags().StringSlice(kind.Plural(), nil, "ids of the "+kind.Plural()+" to export")
	}

	cmd.Flags().BoolVar(&command.Compress, "compress", false, "zip the backup directory")
	cmd.Flags().BoolVar(&command.ContinueOnError, "continue-on-error", true, "keep going after a failed export")

	return cmd
}

func newBackupKindCommand() *cobra.Command {
	var command workflow.KindBackup

	cmd := &cobra.Command{
		Use:   "kind KIND DEST_DIR",
		Short: "Back up every resource of one kind",
		Long:  "Export all resources of one kind, optionally narrowed by an OIC query",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}

			command.Kind = kind
			command.DestDir = args[1]

			return runWorkflow(cmd, workflow.FamilyBackup, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	cmd.Flags().StringVarP(&command.Query, "query", "q", "", "OIC query filter")
	cmd.Flags().BoolVar(&command.Compress, "compress", false, "zip the backup directory")
	cmd.Flags().BoolVar(&command.ContinueOnError, "continue-on-error", true, "keep going after a failed export")

	return cmd
}

func newBackupRestoreCommand() *cobra.Command {
	var (
		command workflow.RestoreBackup
		kinds   []string
	)

	cmd := &cobra.Command{
		Use:   "restore BACKUP_PATH",
		Short: "Restore a backup",
		Long:  "Import a backup directory or zip archive into the selected or target profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command.BackupPath = args[0]

			parsed, err := parseKinds(kinds)
			if err != nil {
				return err
			}

			command.Kinds = parsed

			return runWorkflow(cmd, workflow.FamilyBackup, func(run *workflowRun) (workflow.Command, error) {
				if name, _ := cmd.Flags().GetString("target-profile"); name != "" {
					target, err := run.target(cmd)
					if err != nil {
						return nil, err
					}

					command.Target = target
				}

				return command, nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&kinds, "kinds", nil, "kinds to restore (default all)")
	cmd.Flags().StringVar(&command.FilterPattern, "filter", "", "regular expression matched against resource names")
	cmd.Flags().BoolVar(&command.Overwrite, "overwrite", false, "replace existing resources")
	cmd.Flags().BoolVar(&command.ContinueOnError, "continue-on-error", true, "keep going after a failed import")
	cmd.Flags().String("target-profile", "", "restore into this profile instead of the selected one")

	return cmd
}

func newBackupPruneCommand() *cobra.Command {
	var command workflow.PruneBackups

	cmd := &cobra.Command{
		Use:   "prune BACKUP_DIR",
		Short: "Delete old backups",
		Long:  "Apply a retention policy to the backups in a directory. The newest backups are always kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command.Dir = args[0]

			return runWorkflow(cmd, workflow.FamilyBackup, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	cmd.Flags().IntVar(&command.RetentionDays, "retention-days", constants.DefaultRetentionDays, "delete backups older than this many days")
	cmd.Flags().IntVar(&command.RetentionCount, "retention-count", constants.DefaultRetentionCount, "always keep this many newest backups")
	cmd.Flags().BoolVar(&command.DryRun, "dry-run", false, "report what would be deleted")

	return cmd
}
