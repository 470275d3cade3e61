package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var maintenanceVersion string

// credentialsCmd groups the database credential operations.
var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage database credentials",
	Long: `Manage the database credentials shared by all database services.

The credentials are applied through a generated init file that every
database executes on boot, so they survive data-directory rebuilds.`,
}

var credentialsSyncCmd = &cobra.Command{
	Use:   "sync <user> <password>",
	Short: "Set credentials and apply them to running databases",
	Long: `Make the given user/password pair the source of truth and restart
every currently-running database version so the regenerated init file
takes effect.`,
	Args: cobra.ExactArgs(2),
	RunE: runCredentialsSync,
}

var credentialsMaintenanceCmd = &cobra.Command{
	Use:   "maintenance <service>",
	Short: "Boot a database with authentication disabled",
	Long: `Start a database in maintenance mode for credential recovery:
authentication checks are disabled and networking is restricted to the
local socket, so the instance is never reachable over TCP. Stop it
with 'stackctl service stop' when done.`,
	Args: cobra.ExactArgs(1),
	RunE: runCredentialsMaintenance,
}

func init() {
	rootCmd.AddCommand(credentialsCmd)

	credentialsCmd.AddCommand(credentialsSyncCmd)
	credentialsCmd.AddCommand(credentialsMaintenanceCmd)

	credentialsMaintenanceCmd.Flags().StringVar(&maintenanceVersion, "version", "", "Engine version (multi-version services only)")
}

func runCredentialsSync(cmd *cobra.Command, args []string) error {
	initCLILogging()
	ctx := cmd.Context()

	orch, err := buildOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer orch.Shutdown()

	if err := orch.SyncCredentials(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Println("Credentials updated.")
	return nil
}

func runCredentialsMaintenance(cmd *cobra.Command, args []string) error {
	initCLILogging()
	ctx := cmd.Context()

	orch, err := buildOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer orch.Shutdown()

	if err := orch.StartMaintenance(ctx, args[0], maintenanceVersion); err != nil {
		return err
	}
	fmt.Printf("%s running in maintenance mode. Authentication is DISABLED.\n", args[0])
	return nil
}
