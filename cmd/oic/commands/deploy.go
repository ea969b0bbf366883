package commands

import (
	"github.com/spf13/cobra"

	"github.com/WolVesz/oic-devops/internal/workflow"
)

// NewDeployCommand creates the deploy command group.
func NewDeployCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deploy",
		Aliases: []string{"deployment"},
		Short:   "Move integrations and packages between environments",
		Long:    "Export, import and promote integrations and packages, or clone an environment into another",
	}

	cmd.AddCommand(newDeployExportCommand())
	cmd.AddCommand(newDeployImportCommand())
	cmd.AddCommand(newDeployPromoteCommand())
	cmd.AddCommand(newDeployExportPackageCommand())
	cmd.AddCommand(newDeployImportPackageCommand())
	cmd.AddCommand(newDeployCloneCommand())

	return cmd
}

func newDeployExportCommand() *cobra.Command {
	var command workflow.ExportIntegration

	cmd := &cobra.Command{
		Use:   "export INTEGRATION_ID DEST_PATH",
		Short: "Export an integration archive",
		Long:  "Write the .zip archive of one integration, optionally with a dependency report",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			command.ID, command.DestPath = args[0], args[1]

			return runWorkflow(cmd, workflow.FamilyDeployment, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	cmd.Flags().BoolVar(&command.Overwrite, "overwrite", false, "replace an existing file")
	cmd.Flags().BoolVar(&command.IncludeDependencies, "include-dependencies", false, "record the connections, lookups and libraries the integration uses")

	return cmd
}

func newDeployImportCommand() *cobra.Command {
	var (
		command     workflow.ImportIntegration
		connections []string
	)

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import an integration archive",
		Long:  "Upload an integration archive, optionally rewiring its connections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command.FilePath = args[0]

			mapping, err := parseMapping(connections)
			if err != nil {
				return err
			}

			command.ConnectionMap = mapping

			return runWorkflow(cmd, workflow.FamilyDeployment, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	cmd.Flags().BoolVar(&command.Overwrite, "overwrite", false, "replace an existing integration")
	cmd.Flags().StringSliceVar(&connections, "connection-map", nil, "SOURCE_ID=TARGET_ID connection rewiring")

	return cmd
}

func newDeployPromoteCommand() *cobra.Command {
	var (
		command     workflow.PromoteIntegration
		connections []string
	)

	cmd := &cobra.Command{
		Use:   "promote INTEGRATION_ID",
		Short: "Promote an integration to another environment",
		Long:  "Export an integration from the selected profile and import it into --target-profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command.ID = args[0]

			mapping, err := parseMapping(connections)
			if err != nil {
				return err
			}

			command.ConnectionMap = mapping

			return runWorkflow(cmd, workflow.FamilyDeployment, func(run *workflowRun) (workflow.Command, error) {
				target, err := run.target(cmd)
				if err != nil {
					return nil, err
				}

				command.Target = target

				return command, nil
			})
		},
	}

	cmd.Flags().String("target-profile", "", "profile of the target environment")
	cmd.Flags().StringSliceVar(&connections, "connection-map", nil, "SOURCE_ID=TARGET_ID connection rewiring")
	cmd.Flags().BoolVar(&command.Activate, "activate", false, "activate the integration in the target")
	cmd.Flags().BoolVar(&command.Overwrite, "overwrite", false, "replace an existing integration in the target")
	_ = cmd.MarkFlagRequired("target-profile")

	return cmd
}

func newDeployExportPackageCommand() *cobra.Command {
	var command workflow.ExportPackage

	cmd := &cobra.Command{
		Use:   "export-package PACKAGE_ID DEST_PATH",
		Short: "Export a package archive",
		Long:  "Write the .par archive of one package",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			command.ID, command.DestPath = args[0], args[1]

			return runWorkflow(cmd, workflow.FamilyDeployment, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	cmd.Flags().BoolVar(&command.Overwrite, "overwrite", false, "replace an existing file")

	return cmd
}

func newDeployImportPackageCommand() *cobra.Command {
	var command workflow.ImportPackage

	cmd := &cobra.Command{
		Use:   "import-package FILE",
		Short: "Import a package archive",
		Long:  "Upload a package archive with all the integrations it contains",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command.FilePath = args[0]

			return runWorkflow(cmd, workflow.FamilyDeployment, func(*workflowRun) (workflow.Command, error) {
				return command, nil
			})
		},
	}

	cmd.Flags().BoolVar(&command.Overwrite, "overwrite", false, "replace an existing package")

	return cmd
}

func newDeployCloneCommand() *cobra.Command {
	var (
		command workflow.CloneEnvironment
		kinds   []string
		include []string
		exclude []string
	)

	cmd := &cobra.Command{
		Use:   "clone",
		Short: "Clone resources into another environment",
		Long:  "Copy connections, lookups, libraries and integrations from the selected profile to --target-profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error

			command.Kinds, err = parseKinds(kinds)
			if err != nil {
				return err
			}

			command.Include, err = parseKindPatterns(include)
			if err != nil {
				return err
			}

			command.Exclude, err = parseKindPatterns(exclude)
			if err != nil {
				return err
			}

			return runWorkflow(cmd, workflow.FamilyDeployment, func(run *workflowRun) (workflow.Command, error) {
				target, err := run.target(cmd)
				if err != nil {
					return nil, err
				}

				command.Target = target

				return command, nil
			})
		},
	}

	cmd.Flags().String("target-profile", "", "profile of the target environment")
	cmd.Flags().StringSliceVar(&kinds, "kinds", nil, "kinds to clone (default all)")
	cmd.Flags().StringSliceVar(&include, "include", nil, "KIND=SUBSTRING, only clone matching resources")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "KIND=SUBSTRING, skip matching resources")
	cmd.Flags().BoolVar(&command.ActivateIntegration, "activate", false, "activate cloned integrations")
	_ = cmd.MarkFlagRequired("target-profile")

	return cmd
}
