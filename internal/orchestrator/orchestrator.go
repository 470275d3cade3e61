// Package orchestrator is the top-level coordinator: it owns the
// per-kind status table, the running-version table and the privileged
// port ownership, and composes the allocator, renderer, supervisor and
// prober into the start/stop/restart algorithms.
package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"stackctl/internal/catalog"
	"stackctl/internal/config"
	"stackctl/internal/configgen"
	"stackctl/internal/health"
	"stackctl/internal/platform"
	"stackctl/internal/ports"
	"stackctl/internal/project"
	"stackctl/internal/supervise"
	"stackctl/pkg/logging"
)

// State is the lifecycle state of a service kind.
type State string

const (
	StateStopped      State = "stopped"
	StateStarting     State = "starting"
	StateRunning      State = "running"
	StateStopping     State = "stopping"
	StateError        State = "error"
	StateNotInstalled State = "not_installed"
)

// ServiceStatus is the externally visible status of one kind. It
// reflects the most recently acted-upon version; concurrently running
// versions are listed in RunningVersions.
type ServiceStatus struct {
	Kind        string
	DisplayName string
	State       State
	Error       string
	Version     string
	Port        int

	// SecondaryPort mirrors catalog.ServiceKind.SecondaryPort: the TLS
	// port for web servers, the SMTP port for mailpit, zero otherwise.
	SecondaryPort int

	StartedAt       time.Time
	RunningVersions []RunningVersion
}

// Uptime returns how long the kind's active process has been running,
// zero when it is not running.
func (s ServiceStatus) Uptime() time.Duration {
	if s.State != StateRunning || s.StartedAt.IsZero() {
		return 0
	}
	return time.Since(s.StartedAt)
}

// RunningVersion is one entry of the secondary per-version table kept
// for multi-version kinds.
type RunningVersion struct {
	Version   string
	Port      int
	StartedAt time.Time
}

// PortAllocator decides actual ports; see internal/ports.
type PortAllocator interface {
	ReservePrivilegedPorts(k catalog.ServiceKind) (httpPort, tlsPort int)
	ReleasePrivilegedPorts(kind catalog.Kind)
	Reset()
	StandardPortOwner() catalog.Kind
	PickPort(defaultPort int) (int, error)
}

// ConfigRenderer writes config artifacts; see internal/configgen.
type ConfigRenderer interface {
	Render(in configgen.Input) (string, error)
	RemoveVhostFragments(k catalog.ServiceKind) error
	CreateCredentialsInitFile(k catalog.ServiceKind, version, user, password string) (string, error)
}

// ProcessSupervisor owns the OS handles; see internal/supervise.
type ProcessSupervisor interface {
	Spawn(ctx context.Context, key supervise.Key, exe string, args []string, env map[string]string, portsBound []int) (*supervise.ProcessRecord, error)
	Get(key supervise.Key) (*supervise.ProcessRecord, bool)
	Records() []*supervise.ProcessRecord
	Terminate(ctx context.Context, key supervise.Key, grace time.Duration, imageName string) error
	KillAll()
	Exits() <-chan supervise.ExitEvent
}

// HealthProber gates readiness; see internal/health.
type HealthProber interface {
	WaitUntilHealthy(ctx context.Context, label string, port int, timeout time.Duration) error
	WaitUntilPipeHealthy(ctx context.Context, label, pipePath string, timeout time.Duration) error
}

// BinaryInventory reports which executables are installed on disk.
type BinaryInventory interface {
	ExecutablePath(k catalog.ServiceKind, version string) string
	IsInstalled(k catalog.ServiceKind, version string) bool
	InstalledVersions(k catalog.ServiceKind) []string
}

// ProjectCollaborator supplies virtual-host records and the
// pre-shutdown project stop hook.
type ProjectCollaborator interface {
	VirtualHostsFor(webServer string) []project.VirtualHost
	StopAllProjects(ctx context.Context) error
}

// CommandRunner executes short-lived helper commands (config
// self-tests, data-dir bootstrap) and returns their combined output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// Orchestrator is constructed once per application run; all state that
// the original design kept in ambient globals lives in here.
type Orchestrator struct {
	cfg       config.Config
	inventory BinaryInventory
	allocator PortAllocator
	renderer  ConfigRenderer
	super     ProcessSupervisor
	prober    HealthProber
	plat      platform.Platform
	projects  ProjectCollaborator
	runner    CommandRunner

	mu              sync.RWMutex
	statuses        map[catalog.Kind]*ServiceStatus
	runningVersions map[catalog.Kind]map[string]RunningVersion

	// Credentials are the single source of truth for every database
	// instance, re-applied on each start via the generated init file.
	dbUser     string
	dbPassword string

	ctx        context.Context
	cancelFunc context.CancelFunc
}

// New wires the orchestrator with live components. Tests replace
// individual collaborators on the returned struct.
func New(cfg config.Config, projects ProjectCollaborator) *Orchestrator {
	plat := platform.New()
	o := &Orchestrator{
		cfg:             cfg,
		inventory:       catalog.NewInventory(cfg.Root),
		allocator:       ports.NewAllocator(),
		renderer:        configgen.New(cfg, plat),
		super:           supervise.New(plat),
		prober:          health.New(plat),
		plat:            plat,
		projects:        projects,
		runner:          execRunner{plat: plat},
		statuses:        make(map[catalog.Kind]*ServiceStatus),
		runningVersions: make(map[catalog.Kind]map[string]RunningVersion),
		dbUser:          cfg.GetDBUser(),
		dbPassword:      cfg.GetDBPassword(),
	}
	o.initStatuses()
	return o
}

func (o *Orchestrator) initStatuses() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, k := range catalog.All() {
		state := StateStopped
		if !o.anyVersionInstalled(k) {
			state = StateNotInstalled
		}
		o.statuses[k.ID] = &ServiceStatus{
			Kind:        string(k.ID),
			DisplayName: k.DisplayName,
			State:       state,
		}
	}
}

func (o *Orchestrator) anyVersionInstalled(k catalog.ServiceKind) bool {
	if !k.MultiVersion {
		return o.inventory.IsInstalled(k, "")
	}
	return len(o.inventory.InstalledVersions(k)) > 0
}

// Start begins orchestration: it launches the exit-event loop that
// reconciles unexpected process exits into status transitions. It does
// not start any services; callers do that explicitly.
func (o *Orchestrator) Start(ctx context.Context) {
	o.ctx, o.cancelFunc = context.WithCancel(ctx)
	go o.watchExits()
}

// Shutdown cancels orchestration. It does not stop services; use
// StopAllServices for the global sweep.
func (o *Orchestrator) Shutdown() {
	if o.cancelFunc != nil {
		o.cancelFunc()
	}
}

// watchExits drains the supervisor's exit channel for the lifetime of
// the orchestrator. An exit while the kind was running is a silent
// transition to stopped: callers discover it by polling status. Crash
// and clean exit are deliberately not distinguished here.
func (o *Orchestrator) watchExits() {
	for {
		select {
		case <-o.ctx.Done():
			return
		case ev := <-o.super.Exits():
			o.handleExit(ev)
		}
	}
}

func (o *Orchestrator) handleExit(ev supervise.ExitEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if versions, ok := o.runningVersions[ev.Key.Kind]; ok {
		delete(versions, ev.Key.Version)
	}

	st, ok := o.statuses[ev.Key.Kind]
	if !ok {
		return
	}
	switch st.State {
	case StateRunning:
		if st.Version == ev.Key.Version {
			st.State = StateStopped
			st.Port = 0
			st.SecondaryPort = 0
			st.StartedAt = time.Time{}
			logging.Info("Orchestrator", "%s exited, marked stopped", ev.Key)
		} else {
			logging.Info("Orchestrator", "%s exited (secondary version)", ev.Key)
		}
	case StateStopping:
		// Requested stop; StopService finishes the transition.
	default:
		logging.Debug("Orchestrator", "%s exited while %s", ev.Key, st.State)
	}

	if k, ok := catalog.Lookup(string(ev.Key.Kind)); ok && k.WebServer {
		o.allocator.ReleasePrivilegedPorts(k.ID)
	}
}

// setState updates a kind's status under the lock.
func (o *Orchestrator) setState(kind catalog.Kind, mutate func(*ServiceStatus)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st, ok := o.statuses[kind]; ok {
		mutate(st)
	}
}

// GetAllServicesStatus returns a snapshot of every kind's status for
// dashboard polling.
func (o *Orchestrator) GetAllServicesStatus() map[string]ServiceStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make(map[string]ServiceStatus, len(o.statuses))
	for kind, st := range o.statuses {
		snapshot := *st
		snapshot.RunningVersions = o.runningVersionsLocked(kind)
		out[string(kind)] = snapshot
	}
	return out
}

// GetServiceStatus returns the snapshot for one kind.
func (o *Orchestrator) GetServiceStatus(kindID string) (ServiceStatus, error) {
	k, ok := catalog.Lookup(kindID)
	if !ok {
		return ServiceStatus{}, &UnknownServiceError{Kind: kindID}
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	snapshot := *o.statuses[k.ID]
	snapshot.RunningVersions = o.runningVersionsLocked(k.ID)
	return snapshot, nil
}

func (o *Orchestrator) runningVersionsLocked(kind catalog.Kind) []RunningVersion {
	versions := o.runningVersions[kind]
	if len(versions) == 0 {
		return nil
	}
	out := make([]RunningVersion, 0, len(versions))
	for _, rv := range versions {
		out = append(out, rv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

// GetServicePorts returns the active HTTP and TLS ports of a kind.
// The Project collaborator uses this to generate virtual-host
// fragments pointing at the correct, possibly-alternate, pair.
func (o *Orchestrator) GetServicePorts(kindID string) (httpPort, tlsPort int, err error) {
	k, ok := catalog.Lookup(kindID)
	if !ok {
		return 0, 0, &UnknownServiceError{Kind: kindID}
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	st := o.statuses[k.ID]
	return st.Port, st.SecondaryPort, nil
}

// IsVersionRunning reports whether a specific version of a kind has a
// live process record.
func (o *Orchestrator) IsVersionRunning(kindID, version string) bool {
	k, ok := catalog.Lookup(kindID)
	if !ok {
		return false
	}
	_, tracked := o.super.Get(supervise.Key{Kind: k.ID, Version: version})
	return tracked
}

// GetRunningVersions lists the running versions of a multi-version
// kind.
func (o *Orchestrator) GetRunningVersions(kindID string) []RunningVersion {
	k, ok := catalog.Lookup(kindID)
	if !ok {
		return nil
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.runningVersionsLocked(k.ID)
}

// StandardPortOwner exposes the privileged-pair ledger for status
// display.
func (o *Orchestrator) StandardPortOwner() catalog.Kind {
	return o.allocator.StandardPortOwner()
}

// ConnectableDatabases lists the (kind, version) pairs the admin UI
// can offer as connection targets: installed database versions only.
func (o *Orchestrator) ConnectableDatabases() []string {
	var out []string
	for _, k := range catalog.Databases() {
		for _, v := range o.inventory.InstalledVersions(k) {
			out = append(out, keyText(string(k.ID), v))
		}
	}
	return out
}
