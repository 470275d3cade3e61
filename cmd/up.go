package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"stackctl/internal/orchestrator"
	"stackctl/internal/tui"
	"stackctl/pkg/logging"
)

// upNoTUI controls whether to run in CLI mode (true) or dashboard mode
// (false). CLI mode is useful for scripting.
var upNoTUI bool

// upCmd defines the up command structure. This is the main command of
// stackctl: it brings the whole stack up and supervises it.
var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Start all installed services and supervise them",
	Long: `Start every installed service of the stack and keep supervising the
processes. It can run in two modes:

1. Dashboard mode (default):
   - Launches a terminal dashboard showing live service state.
   - Services can be started, stopped and restarted interactively.

2. Non-TUI / CLI mode (using --no-tui flag):
   - Starts the services, prints a summary and keeps running until
     interrupted (Ctrl+C), at which point all services are stopped.

Before starting, any orphaned service processes left over from a
previous run are cleaned up. A database failing to start does not
abort the rest of the stack; a web-server failure does.`,
	Args: cobra.NoArgs,
	RunE: runUp,
}

func init() {
	rootCmd.AddCommand(upCmd)

	upCmd.Flags().BoolVar(&upNoTUI, "no-tui", false, "Disable the dashboard and run in plain CLI mode")
}

func runUp(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if upNoTUI {
		return runUpCLI(ctx)
	}
	return runUpDashboard(ctx)
}

func runUpCLI(ctx context.Context) error {
	initCLILogging()

	orch, err := buildOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer orch.Shutdown()

	startErr := orch.StartAllServices(ctx)
	var partial *orchestrator.PartialStartError
	if startErr != nil && !errors.As(startErr, &partial) {
		return startErr
	}
	if partial != nil {
		for label, ferr := range partial.Failures {
			logging.Warn("Up", "%s failed to start: %v", label, ferr)
		}
	}

	printSummary(orch)
	fmt.Println("\nPress Ctrl+C to stop all services.")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}

	fmt.Println("Stopping all services...")
	return orch.StopAllServices(context.Background())
}

func runUpDashboard(ctx context.Context) error {
	level := logging.LevelInfo
	if rootDebug {
		level = logging.LevelDebug
	}
	logCh := logging.InitForDashboard(level)
	defer logging.CloseDashboardChannel()

	orch, err := buildOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer orch.Shutdown()

	// Bring the stack up in the background; the dashboard reflects
	// progress as each service transitions.
	go func() {
		if err := orch.StartAllServices(ctx); err != nil {
			logging.Error("Up", err, "Bulk start finished with errors")
		}
	}()

	p := tea.NewProgram(tui.NewModel(orch, logCh), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}

	return orch.StopAllServices(context.Background())
}

func printSummary(orch *orchestrator.Orchestrator) {
	statuses := orch.GetAllServicesStatus()
	for _, st := range statuses {
		if st.State != orchestrator.StateRunning {
			continue
		}
		if st.SecondaryPort != 0 {
			fmt.Printf("  %-12s ports %d/%d\n", st.Kind, st.Port, st.SecondaryPort)
		} else if st.Port != 0 {
			fmt.Printf("  %-12s port %d\n", st.Kind, st.Port)
		}
	}
}
