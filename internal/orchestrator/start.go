package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"stackctl/internal/catalog"
	"stackctl/internal/configgen"
	"stackctl/internal/supervise"
	"stackctl/pkg/logging"
)

// bindConflictSignatures are the OS error fragments a web-server
// config self-test emits when it cannot bind its listen port. Matching
// one of these warrants the single alternate-pair retry; anything else
// is surfaced verbatim as a config error.
var bindConflictSignatures = []string{
	"address already in use",
	"bind() to",
	"could not bind",
	"permission denied",
	"an attempt was made to access a socket",
	"ah00072",
}

func isBindConflict(output string) bool {
	lower := strings.ToLower(output)
	for _, sig := range bindConflictSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// defaultVersion resolves a versionless request for a multi-version
// kind against what is actually on disk: the curated default when it
// is installed, otherwise the newest installed release. With nothing
// installed the curated default is returned so the resulting
// NotInstalledError names a concrete version.
func (o *Orchestrator) defaultVersion(k catalog.ServiceKind) string {
	if !k.MultiVersion {
		return ""
	}
	preferred := catalog.DefaultVersion(k)
	installed := o.inventory.InstalledVersions(k)
	for _, v := range installed {
		if v == preferred {
			return preferred
		}
	}
	if len(installed) > 0 {
		return installed[len(installed)-1]
	}
	return preferred
}

// StartService starts one (kind, version). An empty version resolves
// against the installed inventory. Starting an already-tracked key is
// a no-op returning the existing status.
func (o *Orchestrator) StartService(ctx context.Context, kindID, version string) (ServiceStatus, error) {
	k, ok := catalog.Lookup(kindID)
	if !ok {
		return ServiceStatus{}, &UnknownServiceError{Kind: kindID}
	}
	if version == "" {
		version = o.defaultVersion(k)
	}
	key := supervise.Key{Kind: k.ID, Version: version}

	if _, tracked := o.super.Get(key); tracked {
		logging.Debug("Orchestrator", "%s already running, start is a no-op", key)
		st, _ := o.GetServiceStatus(kindID)
		return st, nil
	}

	if !o.inventory.IsInstalled(k, version) {
		err := &NotInstalledError{Kind: kindID, Version: version, Path: o.inventory.ExecutablePath(k, version)}
		// One missing version must not repaint a kind whose other
		// versions are live.
		o.mu.RLock()
		hasRunning := len(o.runningVersions[k.ID]) > 0
		o.mu.RUnlock()
		if !hasRunning {
			o.setState(k.ID, func(st *ServiceStatus) {
				st.State = StateNotInstalled
				st.Error = err.Error()
			})
		}
		return ServiceStatus{}, err
	}

	o.setState(k.ID, func(st *ServiceStatus) {
		st.State = StateStarting
		st.Error = ""
	})
	logging.Info("Orchestrator", "Starting %s", key)

	var startErr error
	if k.WebServer {
		startErr = o.startWebServer(ctx, k)
	} else {
		startErr = o.startGeneric(ctx, k, version)
	}

	if startErr != nil {
		o.setState(k.ID, func(st *ServiceStatus) {
			st.State = StateError
			st.Error = startErr.Error()
		})
		return ServiceStatus{}, startErr
	}

	st, _ := o.GetServiceStatus(kindID)
	return st, nil
}

// startWebServer runs the web-server route: privileged-pair
// reservation, render, config self-test with a single alternate-pair
// retry on a bind-conflict signature, spawn, probe.
func (o *Orchestrator) startWebServer(ctx context.Context, k catalog.ServiceKind) error {
	httpPort, tlsPort := o.allocator.ReservePrivilegedPorts(k)

	confPath, err := o.renderWebConfig(k, httpPort, tlsPort)
	if err != nil {
		return err
	}

	out, err := o.selfTest(ctx, k, confPath)
	if err != nil {
		if !isBindConflict(out) {
			return &ConfigInvalidError{Kind: string(k.ID), Version: "", Output: firstNonEmpty(out, err.Error())}
		}
		// The pair we rendered cannot be bound. Discard any claim on
		// the standard pair, drop the vhost fragments that hard-code
		// the old port, regenerate against the alternates and re-test
		// exactly once.
		logging.Warn("Orchestrator", "%s self-test hit a bind conflict on %d/%d, retrying on alternate pair", k.ID, httpPort, tlsPort)
		o.allocator.ReleasePrivilegedPorts(k.ID)
		if err := o.renderer.RemoveVhostFragments(k); err != nil {
			return err
		}
		httpPort, tlsPort = k.AlternatePort, k.AlternateTLSPort
		confPath, err = o.renderWebConfig(k, httpPort, tlsPort)
		if err != nil {
			return err
		}
		out, err = o.selfTest(ctx, k, confPath)
		if err != nil {
			if isBindConflict(out) {
				return &PortUnavailableError{Kind: string(k.ID), Err: fmt.Errorf("alternate pair %d/%d also unavailable", httpPort, tlsPort)}
			}
			return &ConfigInvalidError{Kind: string(k.ID), Output: firstNonEmpty(out, err.Error())}
		}
	}

	key := supervise.Key{Kind: k.ID}
	if _, err := o.super.Spawn(ctx, key, o.inventory.ExecutablePath(k, ""), runArgs(k, confPath, httpPort, 0), nil, []int{httpPort, tlsPort}); err != nil {
		return err
	}

	if err := o.prober.WaitUntilHealthy(ctx, string(k.ID), httpPort, o.probeTimeout(k)); err != nil {
		return &HealthTimeoutError{Kind: string(k.ID), Err: err}
	}

	o.markRunning(k, "", httpPort, tlsPort)
	return nil
}

func (o *Orchestrator) renderWebConfig(k catalog.ServiceKind, httpPort, tlsPort int) (string, error) {
	return o.renderer.Render(configgen.Input{
		Kind:         k,
		Port:         httpPort,
		TLSPort:      tlsPort,
		VirtualHosts: o.projects.VirtualHostsFor(string(k.ID)),
	})
}

// selfTest runs the engine's own config check and returns its combined
// output.
func (o *Orchestrator) selfTest(ctx context.Context, k catalog.ServiceKind, confPath string) (string, error) {
	exe := o.inventory.ExecutablePath(k, "")
	switch k.ID {
	case catalog.Nginx:
		return o.runner.Run(ctx, exe, "-t", "-c", confPath)
	case catalog.Apache:
		return o.runner.Run(ctx, exe, "-t", "-f", confPath)
	default:
		return "", nil
	}
}

// startGeneric handles every non-web kind: pick a free port near the
// version-adjusted default, render config, spawn, probe.
func (o *Orchestrator) startGeneric(ctx context.Context, k catalog.ServiceKind, version string) error {
	port, err := o.allocator.PickPort(o.basePort(k, version))
	if err != nil {
		return &PortUnavailableError{Kind: string(k.ID), Version: version, Err: err}
	}

	var secondary int
	if k.ID == catalog.Mailpit {
		secondary, err = o.allocator.PickPort(k.SecondaryPort)
		if err != nil {
			return &PortUnavailableError{Kind: string(k.ID), Err: err}
		}
	}

	if err := o.ensureDataDir(ctx, k, version); err != nil {
		return err
	}

	if k.Database {
		if _, err := o.renderer.CreateCredentialsInitFile(k, version, o.dbUser, o.dbPassword); err != nil {
			return err
		}
	}

	confPath, err := o.renderer.Render(configgen.Input{
		Kind:    k,
		Version: version,
		Port:    port,
	})
	if err != nil {
		return err
	}

	key := supervise.Key{Kind: k.ID, Version: version}
	exe := o.inventory.ExecutablePath(k, version)
	portsBound := []int{port}
	if secondary != 0 {
		portsBound = append(portsBound, secondary)
	}
	if _, err := o.super.Spawn(ctx, key, exe, runArgs(k, confPath, port, secondary), nil, portsBound); err != nil {
		return err
	}

	if err := o.prober.WaitUntilHealthy(ctx, key.String(), port, o.probeTimeout(k)); err != nil {
		return &HealthTimeoutError{Kind: string(k.ID), Version: version, Err: err}
	}

	o.markRunning(k, version, port, secondary)
	return nil
}

// runArgs builds the command line for a kind. Web servers and the
// config-file kinds take their rendered file; mailpit and adminer are
// configured purely by flags.
func runArgs(k catalog.ServiceKind, confPath string, port, secondary int) []string {
	switch k.ID {
	case catalog.Nginx:
		return []string{"-c", confPath, "-g", "daemon off;"}
	case catalog.Apache:
		return []string{"-f", confPath, "-D", "FOREGROUND"}
	case catalog.MySQL, catalog.MariaDB:
		return []string{"--defaults-file=" + confPath}
	case catalog.Redis:
		return []string{confPath}
	case catalog.Mailpit:
		return []string{
			"--listen", "127.0.0.1:" + strconv.Itoa(port),
			"--smtp", "127.0.0.1:" + strconv.Itoa(secondary),
		}
	case catalog.Adminer:
		return []string{"--listen", "127.0.0.1:" + strconv.Itoa(port)}
	default:
		return nil
	}
}

// ensureDataDir creates the exclusive data directory for the key and,
// for database kinds on first run, bootstraps the system tables.
func (o *Orchestrator) ensureDataDir(ctx context.Context, k catalog.ServiceKind, version string) error {
	dir := o.cfg.DataDir(string(k.ID), version)

	entries, err := os.ReadDir(dir)
	firstRun := os.IsNotExist(err) || (err == nil && len(entries) == 0)
	if err != nil && !os.IsNotExist(err) {
		return &InitializationError{Kind: string(k.ID), Version: version, Err: err}
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return &InitializationError{Kind: string(k.ID), Version: version, Err: err}
	}

	if !firstRun || !k.Database {
		return nil
	}

	exe := o.inventory.ExecutablePath(k, version)
	var out string
	switch k.ID {
	case catalog.MySQL:
		out, err = o.runner.Run(ctx, exe, "--initialize-insecure", "--datadir="+dir)
	case catalog.MariaDB:
		// MariaDB ships the bootstrap as a sibling tool.
		installer := filepath.Join(filepath.Dir(exe), "mariadb-install-db")
		out, err = o.runner.Run(ctx, installer, "--datadir="+dir)
	}
	if err != nil {
		return &InitializationError{Kind: string(k.ID), Version: version, Err: fmt.Errorf("%v: %s", err, strings.TrimSpace(out))}
	}
	logging.Info("Orchestrator", "Initialized data directory for %s %s", k.ID, version)
	return nil
}

// markRunning records a successful start in both tables.
func (o *Orchestrator) markRunning(k catalog.ServiceKind, version string, port, secondary int) {
	now := time.Now()
	o.mu.Lock()
	defer o.mu.Unlock()

	st := o.statuses[k.ID]
	st.State = StateRunning
	st.Error = ""
	st.Version = version
	st.Port = port
	st.SecondaryPort = secondary
	st.StartedAt = now

	if k.MultiVersion {
		if o.runningVersions[k.ID] == nil {
			o.runningVersions[k.ID] = make(map[string]RunningVersion)
		}
		o.runningVersions[k.ID][version] = RunningVersion{Version: version, Port: port, StartedAt: now}
	}
}

func (o *Orchestrator) basePort(k catalog.ServiceKind, version string) int {
	base := catalog.PortFor(k, version)
	if settings, ok := o.cfg.Services[string(k.ID)]; ok && settings.Port != 0 {
		base = settings.Port + catalog.VersionOffset(k.ID, version)
	}
	return base
}

func (o *Orchestrator) probeTimeout(k catalog.ServiceKind) time.Duration {
	if settings, ok := o.cfg.Services[string(k.ID)]; ok && settings.ProbeTimeout != 0 {
		return settings.ProbeTimeout
	}
	return k.ProbeTimeout
}

// StartAllServices starts the default version of every installed kind.
// A web-server failure is critical and aborts with its error; other
// failures are collected into a partial-success report.
func (o *Orchestrator) StartAllServices(ctx context.Context) error {
	// Clear strays from a previous crash before binding anything.
	o.sweepOrphans()

	var (
		g        errgroup.Group
		mu       sync.Mutex
		failures = make(map[string]error)
		critical error
	)

	for _, k := range catalog.All() {
		if !o.anyVersionInstalled(k) {
			continue
		}
		k := k
		g.Go(func() error {
			_, err := o.StartService(ctx, string(k.ID), "")
			if err == nil {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			if k.WebServer {
				if critical == nil {
					critical = fmt.Errorf("web server %s failed to start: %w", k.ID, err)
				}
			} else {
				failures[string(k.ID)] = err
			}
			return nil
		})
	}
	g.Wait()

	if critical != nil {
		return critical
	}
	if len(failures) > 0 {
		return &PartialStartError{Failures: failures}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
