// Package health implements the readiness gate used after a service
// process is spawned: poll a TCP connect (or a local pipe for a
// database in maintenance mode) until it succeeds or a wall-clock
// deadline passes.
package health

import (
	"context"
	"fmt"
	"net"
	"time"

	"stackctl/internal/platform"
	"stackctl/pkg/logging"
)

const pollInterval = 500 * time.Millisecond

// TimeoutError reports that a spawned process never became reachable
// within its deadline. It is distinct from "binary missing" and
// "config rejected", which are caught earlier in the start sequence.
type TimeoutError struct {
	Target  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s not reachable within %s", e.Target, e.Timeout)
}

// Prober polls endpoints until healthy or deadline.
type Prober struct {
	plat platform.Platform

	// dial is swapped in tests.
	dial func(addr string, timeout time.Duration) error
}

// New creates a prober using live TCP dials.
func New(plat platform.Platform) *Prober {
	return &Prober{plat: plat, dial: dialTCP}
}

func dialTCP(addr string, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

// WaitUntilHealthy polls a TCP connect against 127.0.0.1:port every
// 500 ms until it succeeds or timeout elapses.
func (p *Prober) WaitUntilHealthy(ctx context.Context, label string, port int, timeout time.Duration) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	deadline := time.Now().Add(timeout)

	for {
		if err := p.dial(addr, pollInterval); err == nil {
			logging.Debug("Health", "%s reachable on %s", label, addr)
			return nil
		}
		if time.Now().After(deadline) {
			return &TimeoutError{Target: fmt.Sprintf("%s (%s)", label, addr), Timeout: timeout}
		}
		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WaitUntilPipeHealthy is the maintenance-mode variant: the engine is
// listening only on a local pipe, so reachability is a pipe connect
// instead of a TCP dial.
func (p *Prober) WaitUntilPipeHealthy(ctx context.Context, label, pipePath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		if err := p.plat.ProbePipe(pipePath, pollInterval); err == nil {
			logging.Debug("Health", "%s reachable on pipe %s", label, pipePath)
			return nil
		}
		if time.Now().After(deadline) {
			return &TimeoutError{Target: fmt.Sprintf("%s (pipe %s)", label, pipePath), Timeout: timeout}
		}
		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
