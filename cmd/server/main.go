package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "filesync-server",
		Short:        "Multi-device file sync engine.",
		SilenceUsage: true,

		// main prints the error.
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		newServeCmd(),
		newSignatureCmd(),
		newDeltaCmd(),
		newApplyCmd(),
		newTokenCmd(),
	)
	return rootCmd
}
