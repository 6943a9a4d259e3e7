// Package cmd wires the CLI surface: serve, migrate, ask, version.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "psrassist",
	Short: "PSR maintenance assistant service",
	Long: `psrassist answers maintenance questions from a tiered knowledge base
and manages model training jobs and batch document processing.

Run "psrassist serve" to start the HTTP API, or "psrassist ask" for a
one-shot question from the terminal.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
