// Package cli is the command-line entry point: it serves the HTTP API, runs
// under Lambda, or works on a local file directly.
package cli

import (
	"github.com/spf13/cobra"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "document-assistant",
	Short: "Summarize documents, answer questions about them and quiz comprehension",
	Long: `document-assistant ingests a PDF or TXT document, summarizes it, answers
questions grounded in its text and generates comprehension challenges.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}
