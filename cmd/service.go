package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"stackctl/internal/orchestrator"
)

// serviceVersion selects a specific engine version for the
// multi-version kinds (mysql, mariadb). Empty means the default.
var serviceVersion string

// serviceCmd represents the service command
var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage individual services",
	Long: `Manage individual services of the local stack.

Available commands:
  list     - List all services with their status
  start    - Start a service
  stop     - Stop a service
  restart  - Restart a service
  status   - Get detailed status of a service

Databases support running several versions side by side; select one
with --version (e.g. 'stackctl service start mysql --version 5.7').`,
}

var serviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all services",
	Long: `List all services with their current state, ports and running
versions.`,
	Args: cobra.NoArgs,
	RunE: runServiceList,
}

var serviceStartCmd = &cobra.Command{
	Use:   "start <service>",
	Short: "Start a service",
	Long: `Start a service by name. For web servers this negotiates the
standard ports 80/443: the first web server up gets them, a second one
falls back to its alternate ports.`,
	Args: cobra.ExactArgs(1),
	RunE: runServiceStart,
}

var serviceStopCmd = &cobra.Command{
	Use:   "stop <service>",
	Short: "Stop a service",
	Long: `Stop a service by name. Stopping a service that is not running is a
no-op. Stopping a web server that owns ports 80/443 releases them for
the other web server.`,
	Args: cobra.ExactArgs(1),
	RunE: runServiceStop,
}

var serviceRestartCmd = &cobra.Command{
	Use:   "restart <service>",
	Short: "Restart a service",
	Long:  `Stop the service's active version and start it again.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runServiceRestart,
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status <service>",
	Short: "Get detailed status of a service",
	Long: `Show detailed status for one service: state, ports, uptime and, for
the multi-version databases, every running version.`,
	Args: cobra.ExactArgs(1),
	RunE: runServiceStatus,
}

func init() {
	rootCmd.AddCommand(serviceCmd)

	serviceCmd.AddCommand(serviceListCmd)
	serviceCmd.AddCommand(serviceStartCmd)
	serviceCmd.AddCommand(serviceStopCmd)
	serviceCmd.AddCommand(serviceRestartCmd)
	serviceCmd.AddCommand(serviceStatusCmd)

	serviceStartCmd.Flags().StringVar(&serviceVersion, "version", "", "Engine version (multi-version services only)")
	serviceStopCmd.Flags().StringVar(&serviceVersion, "version", "", "Engine version (multi-version services only)")
}

func runServiceList(cmd *cobra.Command, args []string) error {
	initCLILogging()
	ctx := cmd.Context()

	orch, err := buildOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer orch.Shutdown()

	statuses := orch.GetAllServicesStatus()
	kinds := make([]string, 0, len(statuses))
	for kind := range statuses {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	fmt.Println(listHeaderStyle.Render(fmt.Sprintf("%-14s %-16s %-12s %s", "SERVICE", "STATE", "PORT", "VERSIONS")))
	for _, kind := range kinds {
		st := statuses[kind]
		port := "-"
		if st.Port != 0 {
			port = fmt.Sprintf("%d", st.Port)
			if st.SecondaryPort != 0 {
				port = fmt.Sprintf("%d/%d", st.Port, st.SecondaryPort)
			}
		}
		versions := "-"
		if len(st.RunningVersions) > 0 {
			var vs []string
			for _, rv := range st.RunningVersions {
				vs = append(vs, rv.Version)
			}
			versions = strings.Join(vs, ", ")
		}
		fmt.Printf("%-14s %s %-12s %s\n", st.Kind, stateGlyph(st.State), port, versions)
	}
	return nil
}

var (
	listHeaderStyle  = lipgloss.NewStyle().Bold(true)
	listRunningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	listErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	listMutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// stateGlyph pads to the column width before styling: %-16s would
// count the ANSI escapes and break the alignment.
func stateGlyph(state orchestrator.State) string {
	text, style := "○ "+string(state), lipgloss.NewStyle()
	switch state {
	case orchestrator.StateRunning:
		text, style = "● running", listRunningStyle
	case orchestrator.StateError:
		text, style = "✗ error", listErrorStyle
	case orchestrator.StateNotInstalled:
		text, style = "○ not installed", listMutedStyle
	}
	return style.Render(fmt.Sprintf("%-16s", text))
}

func runServiceStart(cmd *cobra.Command, args []string) error {
	initCLILogging()
	ctx := cmd.Context()

	orch, err := buildOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer orch.Shutdown()

	st, err := orch.StartService(ctx, args[0], serviceVersion)
	if err != nil {
		return err
	}
	fmt.Println(startMessage(st))
	return nil
}

// startMessage reports what StartService actually returned. A start
// can succeed as a no-op against a record in a non-running state, so
// the state is echoed rather than assumed.
func startMessage(st orchestrator.ServiceStatus) string {
	switch {
	case st.SecondaryPort != 0:
		return fmt.Sprintf("%s %s on ports %d/%d", st.Kind, st.State, st.Port, st.SecondaryPort)
	case st.Port != 0:
		return fmt.Sprintf("%s %s on port %d", st.Kind, st.State, st.Port)
	default:
		return fmt.Sprintf("%s %s", st.Kind, st.State)
	}
}

func runServiceStop(cmd *cobra.Command, args []string) error {
	initCLILogging()
	ctx := cmd.Context()

	orch, err := buildOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer orch.Shutdown()

	if err := orch.StopService(ctx, args[0], serviceVersion); err != nil {
		return err
	}
	fmt.Printf("%s stopped\n", args[0])
	return nil
}

func runServiceRestart(cmd *cobra.Command, args []string) error {
	initCLILogging()
	ctx := cmd.Context()

	orch, err := buildOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer orch.Shutdown()

	if err := orch.RestartService(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("%s restarted\n", args[0])
	return nil
}

func runServiceStatus(cmd *cobra.Command, args []string) error {
	initCLILogging()
	ctx := cmd.Context()

	orch, err := buildOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer orch.Shutdown()

	st, err := orch.GetServiceStatus(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Service:  %s\n", st.DisplayName)
	fmt.Printf("State:    %s\n", st.State)
	if st.Error != "" {
		fmt.Printf("Error:    %s\n", st.Error)
	}
	if st.SecondaryPort != 0 {
		fmt.Printf("Ports:    %d/%d\n", st.Port, st.SecondaryPort)
	} else if st.Port != 0 {
		fmt.Printf("Port:     %d\n", st.Port)
	}
	if up := st.Uptime(); up > 0 {
		fmt.Printf("Uptime:   %s\n", up.Truncate(time.Second))
	}
	for _, rv := range st.RunningVersions {
		fmt.Printf("Version:  %s (port %d)\n", rv.Version, rv.Port)
	}
	return nil
}
