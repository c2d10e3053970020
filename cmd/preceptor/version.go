package main

import (
	"fmt"

	"github.com/aretw0/preceptor"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of preceptor",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "preceptor version %s\n", preceptor.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
