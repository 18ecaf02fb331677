package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "protocolctl",
	Short: "Validate manifest-driven provider descriptors.",
	Long:  `protocolctl loads and validates provider manifests against the runtime's promotion and structural rules.`,
}

// Execute adds all child commands to the root command and runs it. Called by
// main.main; non-zero os.Exit codes propagate cobra's own returned error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
