//go:build !windows

package platform

import (
	"fmt"
	"net"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

type unixPlatform struct{}

// New returns the platform implementation for the current OS.
func New() Platform {
	return unixPlatform{}
}

func (unixPlatform) ConfigureCommand(cmd *exec.Cmd) {
	// Own process group: signals aimed at the orchestrator's terminal
	// do not reach the service, and the whole group can be signalled
	// via the negative pid.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func (unixPlatform) Terminate(pid int) error {
	if err := unix.Kill(-pid, unix.SIGTERM); err != nil && err != unix.ESRCH {
		return fmt.Errorf("signalling process group %d: %w", pid, err)
	}
	return nil
}

func (unixPlatform) Kill(pid int) error {
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		return fmt.Errorf("killing process group %d: %w", pid, err)
	}
	return nil
}

func (unixPlatform) KillByImageName(name string) error {
	// pkill exits 1 when nothing matched; that is a clean sweep.
	cmd := exec.Command("pkill", "-9", "-x", name)
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil
		}
		return fmt.Errorf("pkill %s: %w", name, err)
	}
	return nil
}

func (unixPlatform) ProbePipe(path string, timeout time.Duration) error {
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (unixPlatform) PipePath(runDir, name string) string {
	return filepath.Join(runDir, name+".sock")
}
