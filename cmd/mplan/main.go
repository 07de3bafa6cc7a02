package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/mplan/cmd/mplan/commands"
	"github.com/teranos/mplan/logger"
)

var rootCmd = &cobra.Command{
	Use:   "mplan",
	Short: "mplan - Checklist plans and tracked executions",
	Long: `mplan - Reusable checklist plans with tracked executions.

Define ordered plans of reusable actions, run them as executions, and
check items off as you go. Past runs stay on record with per-item
timestamps.

Examples:
  mplan serve              # Start the API server
  mplan db stats           # Show database statistics
  mplan users add alice    # Create an account
  mplan config show        # Show resolved configuration`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(false); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		logger.SetVerbosity(verbosity)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.UsersCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
