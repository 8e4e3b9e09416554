// Package commands builds the pyhostd CLI, grounded on mrdon-cleared's
// internal/commands.NewRootCommand.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pyhostd",
		Short: "Out-of-process Python interpreter service",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	var configPath string
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")

	rootCmd.AddCommand(newServeCommand(&configPath))
	rootCmd.AddCommand(newScriptCommand(&configPath))
	rootCmd.AddCommand(newKeygenCommand())

	return rootCmd
}
