package commands

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X ...commands.Version=...".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "musetalk %s\n", Version)
		if verbose {
			fmt.Fprintf(cmd.OutOrStdout(), "  go:     %s\n", runtime.Version())
			if info, ok := debug.ReadBuildInfo(); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "  module: %s\n", info.Main.Path)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
