// Command pennant-wrapper serves a Pennant client over HTTP so that
// services without a native SDK can check flags.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	GitCommit = "undefined"
	Version   = "undefined"
	BuildTime = "undefined"
)

const applicationName = "pennant-wrapper"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCommand creates the root command
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           applicationName,
		Short:         "Pennant flag wrapper",
		Long:          "Serves flag evaluations of a single target over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newStartCommand())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (commit %s, built %s)\n", applicationName, Version, GitCommit, BuildTime)
		},
	})
	return cmd
}
