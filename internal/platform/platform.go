// Package platform isolates the per-OS details of process management:
// how a service executable is spawned without a visible window, how a
// process (group) is asked to stop or force-killed, how stray worker
// processes are swept by image name, and how the local maintenance
// endpoint is probed. The orchestrator consumes this interface
// uniformly and never branches on GOOS itself.
package platform

import (
	"os/exec"
	"time"
)

// Platform is implemented once per target OS.
type Platform interface {
	// ConfigureCommand prepares cmd so the child is detached from the
	// orchestrator's own lifecycle (own process group, no transient
	// console window). The child keeps running if the UI closes and is
	// reaped by the explicit shutdown sweep.
	ConfigureCommand(cmd *exec.Cmd)

	// Terminate requests a graceful stop of the process group.
	Terminate(pid int) error

	// Kill force-kills the process group.
	Kill(pid int) error

	// KillByImageName force-kills every process whose executable image
	// matches name. Used as the belt-and-suspenders sweep for web
	// server workers that outlive their parent. A no-match result is
	// not an error.
	KillByImageName(name string) error

	// ProbePipe makes a single connection attempt against the local
	// maintenance endpoint (unix socket or named pipe) and closes it.
	ProbePipe(path string, timeout time.Duration) error

	// PipePath builds the OS-appropriate maintenance endpoint path.
	PipePath(runDir, name string) string
}
