// Package cmd wires the CLI: serve runs the HTTP API, export rebuilds
// the knowledge corpus.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "portfolio-bot",
	Short: "Chatbot API for the portfolio site",
	Long: `portfolio-bot answers visitor questions about the portfolio site using
a locally hosted language model grounded on the exported site content.

Run "portfolio-bot serve" to start the HTTP API, or "portfolio-bot export"
to rebuild the knowledge corpus from the rendered site.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
