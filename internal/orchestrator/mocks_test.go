package orchestrator

import (
	"context"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"stackctl/internal/catalog"
	"stackctl/internal/config"
	"stackctl/internal/configgen"
	"stackctl/internal/project"
	"stackctl/internal/supervise"
)

// fakeAllocator hands out deterministic ports and records the
// privileged-pair ledger operations.
type fakeAllocator struct {
	mu       sync.Mutex
	owner    catalog.Kind
	released []catalog.Kind
	resets   int
	pickErr  error
	busy     map[int]bool // ports PickPort should skip
}

func (f *fakeAllocator) ReservePrivilegedPorts(k catalog.ServiceKind) (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.owner != "" && f.owner != k.ID {
		return k.AlternatePort, k.AlternateTLSPort
	}
	f.owner = k.ID
	return k.DefaultPort, k.SecondaryPort
}

func (f *fakeAllocator) ReleasePrivilegedPorts(kind catalog.Kind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, kind)
	if f.owner == kind {
		f.owner = ""
	}
}

func (f *fakeAllocator) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.owner = ""
}

func (f *fakeAllocator) StandardPortOwner() catalog.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owner
}

func (f *fakeAllocator) PickPort(defaultPort int) (int, error) {
	if f.pickErr != nil {
		return 0, f.pickErr
	}
	port := defaultPort
	for f.busy[port] {
		port++
	}
	return port, nil
}

// fakeRenderer records render calls without touching the filesystem.
type fakeRenderer struct {
	mu            sync.Mutex
	inputs        []configgen.Input
	initFiles     []string // "kind@version:user"
	vhostRemovals []catalog.Kind
	renderErr     error
}

func (f *fakeRenderer) Render(in configgen.Input) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.renderErr != nil {
		return "", f.renderErr
	}
	f.inputs = append(f.inputs, in)
	return "/tmp/" + string(in.Kind.ID) + ".conf", nil
}

func (f *fakeRenderer) RemoveVhostFragments(k catalog.ServiceKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vhostRemovals = append(f.vhostRemovals, k.ID)
	return nil
}

func (f *fakeRenderer) CreateCredentialsInitFile(k catalog.ServiceKind, version, user, password string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initFiles = append(f.initFiles, string(k.ID)+"@"+version+":"+user)
	return "/tmp/init.sql", nil
}

func (f *fakeRenderer) lastInput() (configgen.Input, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inputs) == 0 {
		return configgen.Input{}, false
	}
	return f.inputs[len(f.inputs)-1], true
}

// fakeSupervisor tracks records in memory; no processes are spawned.
type fakeSupervisor struct {
	mu         sync.Mutex
	records    map[supervise.Key]*supervise.ProcessRecord
	spawned    []supervise.Key
	terminated []supervise.Key
	killAlls   int
	spawnErr   error
	exits      chan supervise.ExitEvent
	nextPID    int
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{
		records: make(map[supervise.Key]*supervise.ProcessRecord),
		exits:   make(chan supervise.ExitEvent, 16),
		nextPID: 1000,
	}
}

func (f *fakeSupervisor) Spawn(ctx context.Context, key supervise.Key, exe string, args []string, env map[string]string, portsBound []int) (*supervise.ProcessRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.spawnErr != nil {
		return nil, f.spawnErr
	}
	f.nextPID++
	rec := &supervise.ProcessRecord{
		ID:        key.String(),
		Key:       key,
		PID:       f.nextPID,
		Ports:     portsBound,
		StartedAt: time.Now(),
	}
	f.records[key] = rec
	f.spawned = append(f.spawned, key)
	return rec, nil
}

func (f *fakeSupervisor) Get(key supervise.Key) (*supervise.ProcessRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[key]
	return rec, ok
}

func (f *fakeSupervisor) Records() []*supervise.ProcessRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*supervise.ProcessRecord, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

func (f *fakeSupervisor) Terminate(ctx context.Context, key supervise.Key, grace time.Duration, imageName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, key)
	delete(f.records, key)
	return nil
}

func (f *fakeSupervisor) KillAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killAlls++
	f.records = make(map[supervise.Key]*supervise.ProcessRecord)
}

func (f *fakeSupervisor) Exits() <-chan supervise.ExitEvent {
	return f.exits
}

// fakeProber succeeds unless a label is listed in failFor.
type fakeProber struct {
	mu      sync.Mutex
	probed  []string
	failFor map[string]error
}

func (f *fakeProber) WaitUntilHealthy(ctx context.Context, label string, port int, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probed = append(f.probed, label)
	if f.failFor != nil {
		if err, ok := f.failFor[label]; ok {
			return err
		}
	}
	return nil
}

func (f *fakeProber) WaitUntilPipeHealthy(ctx context.Context, label, pipePath string, timeout time.Duration) error {
	return f.WaitUntilHealthy(ctx, label, 0, timeout)
}

// fakeInventory reports installation from an in-memory set keyed
// "kind" or "kind@version".
type fakeInventory struct {
	installed map[string]bool
}

func (f *fakeInventory) key(k catalog.ServiceKind, version string) string {
	if version == "" {
		return string(k.ID)
	}
	return string(k.ID) + "@" + version
}

func (f *fakeInventory) ExecutablePath(k catalog.ServiceKind, version string) string {
	return "/opt/stack/bin/" + f.key(k, version) + "/" + k.ExecutableName
}

func (f *fakeInventory) IsInstalled(k catalog.ServiceKind, version string) bool {
	return f.installed[f.key(k, version)]
}

func (f *fakeInventory) InstalledVersions(k catalog.ServiceKind) []string {
	var out []string
	prefix := string(k.ID) + "@"
	for key, ok := range f.installed {
		if ok && strings.HasPrefix(key, prefix) {
			out = append(out, strings.TrimPrefix(key, prefix))
		}
	}
	sort.Strings(out)
	return out
}

// fakeProjects returns canned virtual hosts.
type fakeProjects struct {
	vhosts  map[string][]project.VirtualHost
	stopped int
	stopErr error
}

func (f *fakeProjects) VirtualHostsFor(webServer string) []project.VirtualHost {
	return f.vhosts[webServer]
}

func (f *fakeProjects) StopAllProjects(ctx context.Context) error {
	f.stopped++
	return f.stopErr
}

// fakeRunner returns scripted results per command keyword. The first
// matching entry is consumed, so a retry can script a different second
// result.
type runnerResult struct {
	match  string // substring matched against the joined command line
	output string
	err    error
}

type fakeRunner struct {
	mu      sync.Mutex
	results []runnerResult
	calls   []string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	line := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, line)
	for i, res := range f.results {
		if strings.Contains(line, res.match) {
			f.results = append(f.results[:i], f.results[i+1:]...)
			return res.output, res.err
		}
	}
	return "", nil
}

// fakePlatform satisfies platform.Platform without touching any
// processes.
type fakePlatform struct {
	mu          sync.Mutex
	imageKills  []string
	terminated  []int
	killed      []int
	pipeHealthy bool
}

func (f *fakePlatform) ConfigureCommand(cmd *exec.Cmd) {}

func (f *fakePlatform) Terminate(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, pid)
	return nil
}

func (f *fakePlatform) Kill(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, pid)
	return nil
}

func (f *fakePlatform) KillByImageName(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageKills = append(f.imageKills, name)
	return nil
}

func (f *fakePlatform) ProbePipe(path string, timeout time.Duration) error {
	return nil
}

func (f *fakePlatform) PipePath(runDir, name string) string {
	return runDir + "/" + name + ".sock"
}

// testOrchestrator builds an orchestrator wired entirely to fakes. The
// returned fakes are the same instances the orchestrator uses.
type testFixture struct {
	orch      *Orchestrator
	allocator *fakeAllocator
	renderer  *fakeRenderer
	super     *fakeSupervisor
	prober    *fakeProber
	inventory *fakeInventory
	projects  *fakeProjects
	runner    *fakeRunner
	plat      *fakePlatform
}

func newTestFixture(root string, installed ...string) *testFixture {
	cfg := config.GetDefaultConfig()
	cfg.Root = root

	f := &testFixture{
		allocator: &fakeAllocator{busy: make(map[int]bool)},
		renderer:  &fakeRenderer{},
		super:     newFakeSupervisor(),
		prober:    &fakeProber{},
		inventory: &fakeInventory{installed: make(map[string]bool)},
		projects:  &fakeProjects{},
		runner:    &fakeRunner{},
		plat:      &fakePlatform{},
	}
	for _, key := range installed {
		f.inventory.installed[key] = true
	}

	o := &Orchestrator{
		cfg:             cfg,
		inventory:       f.inventory,
		allocator:       f.allocator,
		renderer:        f.renderer,
		super:           f.super,
		prober:          f.prober,
		plat:            f.plat,
		projects:        f.projects,
		runner:          f.runner,
		statuses:        make(map[catalog.Kind]*ServiceStatus),
		runningVersions: make(map[catalog.Kind]map[string]RunningVersion),
		dbUser:          "dev",
		dbPassword:      "dev",
	}
	o.initStatuses()
	f.orch = o
	return f
}
