//go:build windows

package platform

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"
)

type windowsPlatform struct{}

// New returns the platform implementation for the current OS.
func New() Platform {
	return windowsPlatform{}
}

func (windowsPlatform) ConfigureCommand(cmd *exec.Cmd) {
	// HideWindow prevents the transient console flash; the new process
	// group keeps Ctrl-C in the orchestrator's console away from the
	// service.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

func (windowsPlatform) Terminate(pid int) error {
	// Without /F taskkill delivers a close request the service can
	// honor; the tree flag covers already-spawned workers.
	cmd := exec.Command("taskkill", "/PID", strconv.Itoa(pid), "/T")
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("taskkill pid %d: %w", pid, err)
	}
	return nil
}

func (windowsPlatform) Kill(pid int) error {
	cmd := exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid))
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("taskkill /F pid %d: %w", pid, err)
	}
	return nil
}

func (windowsPlatform) KillByImageName(name string) error {
	cmd := exec.Command("taskkill", "/F", "/T", "/IM", name+".exe")
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	// taskkill exits 128 when no matching image is running; a clean
	// sweep, not a failure.
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 128 {
			return nil
		}
		return fmt.Errorf("taskkill /IM %s: %w", name, err)
	}
	return nil
}

func (windowsPlatform) ProbePipe(path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err == nil {
			return f.Close()
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (windowsPlatform) PipePath(_, name string) string {
	return `\\.\pipe\` + name
}
