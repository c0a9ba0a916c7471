// Package commands implements the haystack CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "haystack",
		Short: "Haystack - conversational assistant for team chat workspaces",
		Long: `Haystack answers questions in a team chat workspace: it searches
message history, summarizes threads, recommends workflow actions and chats
from conversation context.

Examples:
  haystack serve
  haystack serve --config ./config.yaml
  haystack check --config ./config.yaml`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newCheckCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
