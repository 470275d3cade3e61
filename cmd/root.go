package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stackctl/internal/config"
	"stackctl/internal/orchestrator"
	"stackctl/internal/project"
	"stackctl/pkg/logging"
)

// rootDebug enables verbose logging across the application.
var rootDebug bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stackctl",
	Short: "Manage a local web development service stack",
	Long: `stackctl provisions, starts, stops and health-monitors the services of
a local development stack: web servers (nginx, Apache), databases
(MySQL, MariaDB, in multiple versions side by side), Redis, a mail
catcher and a database admin UI.

Service binaries are expected under the stackctl root directory
(default ~/.stackctl); configuration files are generated on every
start, so manual edits to them do not survive.`,
	// SilenceUsage prevents printing the usage block on errors we
	// already report ourselves (failed starts, unknown services).
	SilenceUsage: true,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "stackctl version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&rootDebug, "debug", false, "Enable debug logging")
}

// buildOrchestrator loads the layered configuration and the project
// registry and wires up a ready orchestrator. Logging must already be
// initialized by the caller.
func buildOrchestrator(ctx context.Context) (*orchestrator.Orchestrator, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	store, err := project.Load(cfg.ProjectsFile)
	if err != nil {
		return nil, fmt.Errorf("loading project registry: %w", err)
	}

	orch := orchestrator.New(cfg, store)
	orch.Start(ctx)
	return orch, nil
}

// initCLILogging sets up plain-text logging to stderr for the
// non-dashboard commands.
func initCLILogging() {
	level := logging.LevelInfo
	if rootDebug {
		level = logging.LevelDebug
	}
	logging.InitForCLI(level, os.Stderr)
}
