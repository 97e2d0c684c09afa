package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version can be overridden at build time with -ldflags "-X ronin/internal/cli.version=...".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ronin CLI version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("%s version: %s\n", app, version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
