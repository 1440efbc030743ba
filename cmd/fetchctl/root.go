package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for fetchctl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetchctl",
		Short: "Polite HTTP fetching with adaptive retry",
		Long: `fetchctl fetches URLs with the same retry controller the fetch service uses.
Rate-limited responses back off exponentially, server errors wait a fixed
delay, and redirects are followed up to a configurable depth.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(NewGetCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
