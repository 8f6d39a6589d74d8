// cmd/porttester/version.go
// Version subcommand

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aspnmy/porttester/internal/prober"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "porttester %s (commit: %s, built: %s)\n", version, commit, buildDate)
			fmt.Fprintf(cmd.OutOrStdout(), "protocols: %s\n", strings.Join(prober.Protocols(), ", "))
		},
	}
}
