package tui

import (
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"

	"stackctl/internal/orchestrator"
)

func TestPadFillsToWidth(t *testing.T) {
	assert.Equal(t, "abc   ", pad("abc", 6))
	assert.Equal(t, 6, runewidth.StringWidth(pad("a very long service name", 6)))
}

func TestStateCellTextIsPlain(t *testing.T) {
	// The cell text is padded before the style is applied, so it must
	// carry no escape sequences of its own.
	spin := spinner.New()
	states := []orchestrator.State{
		orchestrator.StateStopped,
		orchestrator.StateRunning,
		orchestrator.StateError,
		orchestrator.StateNotInstalled,
	}
	for _, state := range states {
		st := orchestrator.ServiceStatus{State: state}
		text, _ := stateCell(st, false, spin)
		assert.NotContains(t, text, "\x1b", "state %s", state)
		assert.Equal(t, 16, runewidth.StringWidth(pad(text, 16)), "state %s", state)
	}
}
