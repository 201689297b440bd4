package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/autobuilder/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the autobuilder version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "autobuilder version %s (config format %s)\n", version, config.Version)
	},
}
