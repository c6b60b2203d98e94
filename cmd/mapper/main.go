// Command mapper runs the design-space explorer of spec.md section 1:
// given a configuration tree, it searches for the (mapping, layout) pair
// minimizing the configured metric and emits the four result artifacts of
// spec.md section 6.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/maeri-project/squareloop/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:           "mapper",
	Short:         "Search for a minimal-cost (mapping, layout) pair for a DNN accelerator",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	logger.SetLevel(logger.INFO)
	rootCmd.AddCommand(runCmd)
	if err := rootCmd.Execute(); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}
