package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// downCmd stops everything, including processes left over from
// previous invocations.
var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop all services and clean up leftovers",
	Long: `Stop all services of the stack. Registered projects get their stop
commands run first, then every service process is terminated and any
orphaned engine processes from earlier runs are cleaned up.`,
	Args: cobra.NoArgs,
	RunE: runDown,
}

func init() {
	rootCmd.AddCommand(downCmd)
}

func runDown(cmd *cobra.Command, args []string) error {
	initCLILogging()
	ctx := cmd.Context()

	orch, err := buildOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer orch.Shutdown()

	if err := orch.StopAllServices(ctx); err != nil {
		return err
	}
	fmt.Println("All services stopped.")
	return nil
}
