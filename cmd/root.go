// Package cmd defines the CLI commands for the scrapper executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrapper",
		Short: "A browser-backed web scrape worker.",
		Long: `scrapper runs scrape requests against a pool of remote browser
sessions. It navigates each target URL to network idle, extracts the
rendered HTML and an optional screenshot, stores the artifacts under a
content-addressed key, and records page metadata.

Requests arrive synchronously over HTTP or asynchronously in batches
from a queue; the serve command runs both paths side by side.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (overrides SCRAPPER_* env vars)")
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "scrapper: %v\n", err)
		os.Exit(1)
	}
}
