package commands

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

var resourceColumns = []string{"id", "name", "status", "version"}

// NewResourcesCommand creates the resources command group.
func NewResourcesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "resources",
		Aliases: []string{"res"},
		Short:   "Browse OIC resources",
		Long:    "List and inspect connections, integrations, lookups, libraries and packages",
	}

	cmd.AddCommand(newResourcesListCommand())
	cmd.AddCommand(newResourcesGetCommand())
	cmd.AddCommand(newResourcesPingCommand())

	return cmd
}

func newResourcesListCommand() *cobra.Command {
	var (
		query string
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "list KIND",
		Short: "List resources of one kind",
		Long:  "List connections, integrations, lookups, libraries or packages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}

			env, err := openEnvironment("", nil)
			if err != nil {
				return err
			}

			defer func() { _ = env.Close() }()

			gateway, err := oic.GatewayFor(env.client, kind)
			if err != nil {
				return err
			}

			params := url.Values{}
			if query != "" {
				params.Set(constants.QueryFilter, query)
			}

			var items []oic.Object
			if all {
				items, err = gateway.ListAll(cmd.Context(), params)
			} else {
				items, err = gateway.List(cmd.Context(), params)
			}

			if err != nil {
				return fmt.Errorf("failed to list %s: %w", kind.Plural(), err)
			}

			return renderObjects(cmd.OutOrStdout(), items, resourceColumns...)
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "OIC query filter, e.g. {status:'ACTIVATED'}")
	cmd.Flags().BoolVar(&all, "all", false, "follow pagination and list every resource")

	return cmd
}

func newResourcesGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get KIND ID",
		Short: "Get one resource",
		Long:  "Display the full definition of a single resource",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}

			env, err := openEnvironment("", nil)
			if err != nil {
				return err
			}

			defer func() { _ = env.Close() }()

			gateway, err := oic.GatewayFor(env.client, kind)
			if err != nil {
				return err
			}

			item, err := gateway.Get(cmd.Context(), args[1])
			if err != nil {
				return fmt.Errorf("failed to get %s %s: %w", kind, args[1], err)
			}

			return renderObjects(cmd.OutOrStdout(), []oic.Object{item}, resourceColumns...)
		},
	}
}

func newResourcesPingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check connectivity and credentials",
		Long:  "Authenticate against the selected profile and issue the smallest possible request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnvironment("", nil)
			if err != nil {
				return err
			}

			defer func() { _ = env.Close() }()

			err = env.client.Ping(cmd.Context())
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Connected to %s (profile %s)\n", env.client.BaseURL(), env.name)

			return nil
		},
	}
}
