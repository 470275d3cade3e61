// Package supervise owns the OS process handles of running services.
// It spawns executables detached from the orchestrator's own
// lifecycle, captures their output into the logging collaborator,
// tracks records under a (kind, version) key and publishes exit events
// on a channel instead of registering ad hoc callbacks.
package supervise

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"stackctl/internal/catalog"
	"stackctl/internal/platform"
	"stackctl/pkg/logging"
)

// Key identifies one running process: a kind plus, for multi-version
// kinds, the version. Exactly one ProcessRecord may exist per key.
type Key struct {
	Kind    catalog.Kind
	Version string
}

func (k Key) String() string {
	if k.Version == "" {
		return string(k.Kind)
	}
	return string(k.Kind) + "@" + k.Version
}

// ProcessRecord tracks one running OS process.
type ProcessRecord struct {
	ID        string
	Key       Key
	PID       int
	Ports     []int
	StartedAt time.Time

	cmd  *exec.Cmd
	done chan struct{} // closed once cmd.Wait has returned
}

// ExitEvent is published when a tracked process exits for any reason.
// Err carries the non-zero exit status, if any; the orchestrator does
// not distinguish crash from clean exit.
type ExitEvent struct {
	Key Key
	PID int
	Err error
}

// Supervisor spawns and tracks service processes.
type Supervisor struct {
	mu      sync.RWMutex
	records map[Key]*ProcessRecord
	plat    platform.Platform
	exits   chan ExitEvent
}

// New creates a supervisor on top of the given platform.
func New(plat platform.Platform) *Supervisor {
	return &Supervisor{
		records: make(map[Key]*ProcessRecord),
		plat:    plat,
		exits:   make(chan ExitEvent, 64),
	}
}

// Exits returns the channel exit events are published on. The
// orchestrator drains it for the lifetime of the application.
func (s *Supervisor) Exits() <-chan ExitEvent {
	return s.exits
}

// Get returns the record for a key, if one is tracked.
func (s *Supervisor) Get(key Key) (*ProcessRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	return rec, ok
}

// Records returns all tracked records in stable key order.
func (s *Supervisor) Records() []*ProcessRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ProcessRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

// Spawn starts the executable and registers a record under key. A key
// that is already tracked is an error here; the orchestrator treats
// duplicate starts as a no-op before ever reaching the supervisor.
func (s *Supervisor) Spawn(ctx context.Context, key Key, exe string, args []string, env map[string]string, portsBound []int) (*ProcessRecord, error) {
	s.mu.Lock()
	if _, exists := s.records[key]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%s already tracked", key)
	}
	s.mu.Unlock()

	cmd := exec.Command(exe, args...)
	s.plat.ConfigureCommand(cmd)
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe for %s: %w", key, err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		stdoutPipe.Close()
		return nil, fmt.Errorf("stderr pipe for %s: %w", key, err)
	}

	if err := cmd.Start(); err != nil {
		stdoutPipe.Close()
		stderrPipe.Close()
		return nil, fmt.Errorf("starting %s (%s): %w", key, exe, err)
	}

	rec := &ProcessRecord{
		ID:        uuid.NewString(),
		Key:       key,
		PID:       cmd.Process.Pid,
		Ports:     append([]int(nil), portsBound...),
		StartedAt: time.Now(),
		cmd:       cmd,
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	s.records[key] = rec
	s.mu.Unlock()

	logging.Info("Supervisor", "Started %s (pid %d) on ports %v", key, rec.PID, rec.Ports)

	go s.forwardOutput(key.String(), stdoutPipe, false)
	go s.forwardOutput(key.String(), stderrPipe, true)
	go s.waitFor(rec)

	return rec, nil
}

func (s *Supervisor) forwardOutput(label string, pipe io.ReadCloser, stderr bool) {
	defer pipe.Close()
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		logging.Output(label, stderr, scanner.Text())
	}
}

// waitFor reaps the process, removes the record and publishes the
// exit event.
func (s *Supervisor) waitFor(rec *ProcessRecord) {
	err := rec.cmd.Wait()
	close(rec.done)

	s.mu.Lock()
	// Only remove if this record is still the tracked one; a restart
	// may already have replaced it.
	if cur, ok := s.records[rec.Key]; ok && cur.ID == rec.ID {
		delete(s.records, rec.Key)
	}
	s.mu.Unlock()

	event := ExitEvent{Key: rec.Key, PID: rec.PID, Err: err}
	select {
	case s.exits <- event:
	default:
		logging.Warn("Supervisor", "Dropped exit event for %s (channel full)", rec.Key)
	}
}

// Terminate requests a graceful stop, waits up to grace, then
// escalates to a force kill of the process group. When imageName is
// non-empty an image-name sweep follows, for engines whose workers can
// outlive the parent handle.
func (s *Supervisor) Terminate(ctx context.Context, key Key, grace time.Duration, imageName string) error {
	s.mu.RLock()
	rec, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	if err := s.plat.Terminate(rec.PID); err != nil {
		logging.Warn("Supervisor", "Graceful stop of %s failed: %v", key, err)
	}

	select {
	case <-rec.done:
	case <-time.After(grace):
		logging.Warn("Supervisor", "%s did not stop within %s, force killing", key, grace)
		if err := s.plat.Kill(rec.PID); err != nil {
			return fmt.Errorf("force killing %s: %w", key, err)
		}
		select {
		case <-rec.done:
		case <-time.After(5 * time.Second):
			return fmt.Errorf("%s (pid %d) survived force kill", key, rec.PID)
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	if imageName != "" {
		if err := s.plat.KillByImageName(imageName); err != nil {
			logging.Warn("Supervisor", "Image sweep for %s failed: %v", imageName, err)
		}
	}

	logging.Info("Supervisor", "Stopped %s", key)
	return nil
}

// KillAll force-kills every tracked process. Used by the global
// shutdown after the per-kind graceful path has run.
func (s *Supervisor) KillAll() {
	for _, rec := range s.Records() {
		if err := s.plat.Kill(rec.PID); err != nil {
			logging.Warn("Supervisor", "Killing %s (pid %d): %v", rec.Key, rec.PID, err)
		}
	}
}
