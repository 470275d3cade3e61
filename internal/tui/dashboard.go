// Package tui implements the live status dashboard: a table of all
// service kinds polling the orchestrator, with keybindings to start,
// stop and restart the selected service.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"stackctl/internal/orchestrator"
	"stackctl/pkg/logging"
)

// logHistory bounds the number of log lines kept at the bottom of the
// dashboard.
const logHistory = 8

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("241"))
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("236"))
	runningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1)
)

type tickMsg time.Time

type actionDoneMsg struct {
	kind string
	err  error
}

type logMsg logging.LogEntry

type row struct {
	status orchestrator.ServiceStatus
}

// Model is the bubbletea model for the dashboard.
type Model struct {
	orch    *orchestrator.Orchestrator
	logCh   <-chan logging.LogEntry
	rows    []row
	cursor  int
	spin    spinner.Model
	busy    map[string]bool
	logs    []string
	message string
}

// NewModel creates the dashboard model. logCh is the channel returned
// by logging.InitForDashboard; pass nil to disable the log pane.
func NewModel(orch *orchestrator.Orchestrator, logCh <-chan logging.LogEntry) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	m := Model{
		orch:  orch,
		logCh: logCh,
		spin:  sp,
		busy:  make(map[string]bool),
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, pollCmd(), m.waitForLog())
}

func (m Model) waitForLog() tea.Cmd {
	if m.logCh == nil {
		return nil
	}
	ch := m.logCh
	return func() tea.Msg {
		entry, ok := <-ch
		if !ok {
			return nil
		}
		return logMsg(entry)
	}
}

func pollCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.refresh()
		return m, pollCmd()

	case actionDoneMsg:
		delete(m.busy, msg.kind)
		if msg.err != nil {
			m.message = errorStyle.Render(msg.err.Error())
		} else {
			m.message = ""
		}
		m.refresh()
		return m, nil

	case logMsg:
		line := fmt.Sprintf("%s [%s] %s", msg.Timestamp.Format("15:04:05"), msg.Subsystem, msg.Message)
		if msg.Err != nil {
			line += ": " + msg.Err.Error()
		}
		m.logs = append(m.logs, line)
		if len(m.logs) > logHistory {
			m.logs = m.logs[len(m.logs)-logHistory:]
		}
		return m, m.waitForLog()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.rows)-1 {
				m.cursor++
			}
		case "s":
			return m, m.action("start")
		case "x":
			return m, m.action("stop")
		case "r":
			return m, m.action("restart")
		case "c":
			m.copyAddress()
		}
	}
	return m, nil
}

func (m *Model) refresh() {
	statuses := m.orch.GetAllServicesStatus()
	kinds := make([]string, 0, len(statuses))
	for kind := range statuses {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	m.rows = m.rows[:0]
	for _, kind := range kinds {
		m.rows = append(m.rows, row{status: statuses[kind]})
	}
	if m.cursor >= len(m.rows) {
		m.cursor = len(m.rows) - 1
	}
}

func (m *Model) selected() (orchestrator.ServiceStatus, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return orchestrator.ServiceStatus{}, false
	}
	return m.rows[m.cursor].status, true
}

func (m *Model) action(verb string) tea.Cmd {
	st, ok := m.selected()
	if !ok || m.busy[st.Kind] {
		return nil
	}
	m.busy[st.Kind] = true
	orch := m.orch
	kind := st.Kind
	return func() tea.Msg {
		ctx := context.Background()
		var err error
		switch verb {
		case "start":
			_, err = orch.StartService(ctx, kind, "")
		case "stop":
			err = orch.StopService(ctx, kind, "")
		case "restart":
			err = orch.RestartService(ctx, kind)
		}
		return actionDoneMsg{kind: kind, err: err}
	}
}

func (m *Model) copyAddress() {
	st, ok := m.selected()
	if !ok || st.Port == 0 {
		return
	}
	addr := fmt.Sprintf("127.0.0.1:%d", st.Port)
	if err := clipboard.WriteAll(addr); err != nil {
		m.message = errorStyle.Render("clipboard: " + err.Error())
		return
	}
	m.message = mutedStyle.Render("copied " + addr)
}

func pad(s string, width int) string {
	w := runewidth.StringWidth(s)
	if w >= width {
		return runewidth.Truncate(s, width, "…")
	}
	return s + strings.Repeat(" ", width-w)
}

// stateCell returns the cell text and its style separately: the text
// must be padded before styling, or the ANSI escapes count toward the
// measured width.
func stateCell(st orchestrator.ServiceStatus, busy bool, spin spinner.Model) (string, lipgloss.Style) {
	if busy {
		return spin.View() + " working", lipgloss.NewStyle()
	}
	switch st.State {
	case orchestrator.StateRunning:
		return "● running", runningStyle
	case orchestrator.StateError:
		return "✗ error", errorStyle
	case orchestrator.StateNotInstalled:
		return "not installed", mutedStyle
	default:
		return string(st.State), lipgloss.NewStyle()
	}
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("stackctl services"))
	b.WriteString("\n\n")
	b.WriteString(headerStyle.Render(
		pad("SERVICE", 22) + pad("STATE", 16) + pad("PORT", 12) + pad("VERSIONS", 20) + "UPTIME"))
	b.WriteString("\n")

	for i, r := range m.rows {
		st := r.status

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
		uptime := "-"
		if up := st.Uptime(); up > 0 {
			uptime = up.Truncate(time.Second).String()
		}

		stateText, stateStyle := stateCell(st, m.busy[st.Kind], m.spin)
		line := pad(st.DisplayName, 22) +
			stateStyle.Render(pad(stateText, 16)) +
			pad(port, 12) +
			pad(versions, 20) +
			uptime
		if i == m.cursor {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if owner := m.orch.StandardPortOwner(); owner != "" {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("\n80/443 owned by %s", owner)))
		b.WriteString("\n")
	}
	if m.message != "" {
		b.WriteString("\n" + m.message + "\n")
	}
	if len(m.logs) > 0 {
		b.WriteString("\n")
		for _, line := range m.logs {
			b.WriteString(mutedStyle.Render(line))
			b.WriteString("\n")
		}
	}
	b.WriteString(helpStyle.Render("s start · x stop · r restart · c copy address · q quit"))
	b.WriteString("\n")
	return b.String()
}
