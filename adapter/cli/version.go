package cli

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Build identity, overridden with -ldflags "-X".
var (
	Version = "dev"
	Commit  = "none"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "subtrack %s\n  commit: %s\n  go: %s\n", Version, revision(), runtime.Version())
	},
}

// revision prefers the linker-set commit and falls back to the VCS stamp
// recorded by the go tool.
func revision() string {
	if Commit != "none" {
		return Commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Commit
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && setting.Value != "" {
			return setting.Value
		}
	}
	return Commit
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
