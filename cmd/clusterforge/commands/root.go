// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument
// parsing, flag binding, and validation, then wire the engine's
// collaborators and invoke it.
package commands

import "github.com/spf13/cobra"

// Root returns the root command for the clusterforge CLI.
//
// The root command serves as the entry point and parent for all subcommands.
// It provides basic CLI metadata and organizes the command hierarchy.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clusterforge",
		Short: "Drive clusters and application environments to a declared state",
	}

	cmd.AddCommand(Infra())
	cmd.AddCommand(Deploy())
	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}
