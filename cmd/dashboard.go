package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"stackctl/internal/tui"
	"stackctl/pkg/logging"
)

// dashboardCmd opens the status dashboard without starting anything;
// use 'stackctl up' to bring the stack up first.
var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Open the interactive status dashboard",
	Long: `Open the terminal dashboard showing live service state. Services can
be started, stopped and restarted from the dashboard; unlike
'stackctl up' nothing is started automatically.

Service processes started from the dashboard stop when it exits.`,
	Args: cobra.NoArgs,
	RunE: runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

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

	p := tea.NewProgram(tui.NewModel(orch, logCh), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}

	return orch.StopAllServices(context.Background())
}
