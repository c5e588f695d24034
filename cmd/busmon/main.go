package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command. All settings come from the environment.
func buildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "busmon",
		Short: "Availability monitor for bus-ticket vendor APIs",
		Long: `busmon polls vendor availability APIs on a schedule, stores each outcome in
5-minute slots and serves the last 24 hours as JSON.

Configuration is read from the environment (see "busmon preflight").

Examples:
  busmon serve                 # scheduler + alerter + read API
  busmon check bolivariano     # one probe, printed as JSON
  busmon stats
  busmon cleanup --hours 48`,
		SilenceUsage: true,
	}

	root.AddCommand(
		createServeCommand(),
		createCheckCommand(),
		createStatsCommand(),
		createCleanupCommand(),
		createPreflightCommand(),
	)
	return root
}
