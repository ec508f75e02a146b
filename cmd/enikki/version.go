package main

import (
	"fmt"
	"strings"

	"github.com/hirokts/enikki"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of enikki",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "enikki version %s\n", strings.TrimSpace(enikki.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
