package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Resilient streaming chat gateway",
	Long: `A chat gateway that streams completions from an OpenAI-compatible
upstream, stores every conversation and keeps serving when the
upstream is slow or failing.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
