package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set via ldflags at release time
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of routegate",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "routegate %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
