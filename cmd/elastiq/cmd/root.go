// Package cmd wires elastiq's cobra command tree.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "elastiq",
	Short: "elastiq autoscales a batch worker pool against a cloud fabric",
	Long: "-------------------------------------------------------------------\n" +
		"                              elastiq\n" +
		"-------------------------------------------------------------------",
	SilenceUsage: true,
}

func init() {
	cobra.EnableCommandSorting = false
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(runCmd)
}

// Execute runs the root command, returning cobra's own usage/flag error (if
// any) for main to translate into the documented exit code 1.
func Execute() error {
	return rootCmd.Execute()
}
