package orchestrator

import (
	"context"
	"os/exec"
	"time"

	"stackctl/internal/platform"
)

// execRunner runs short-lived helper commands (config self-tests,
// data-dir bootstrap) with the platform's hidden-window attributes and
// a hard timeout.
type execRunner struct {
	plat platform.Platform
}

const helperTimeout = 30 * time.Second

func (r execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, helperTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, name, args...)
	r.plat.ConfigureCommand(cmd)
	out, err := cmd.CombinedOutput()
	return string(out), err
}
