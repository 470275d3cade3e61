package orchestrator

import (
	"context"
	"time"

	"stackctl/internal/catalog"
	"stackctl/internal/supervise"
	"stackctl/pkg/logging"
)

// stopGrace bounds the graceful-termination wait before the
// supervisor escalates to a force kill.
const stopGrace = 10 * time.Second

// StopService stops one (kind, version). An empty version resolves to
// the kind's currently active version. Stopping an untracked key is a
// no-op.
func (o *Orchestrator) StopService(ctx context.Context, kindID, version string) error {
	k, ok := catalog.Lookup(kindID)
	if !ok {
		return &UnknownServiceError{Kind: kindID}
	}
	if version == "" {
		o.mu.RLock()
		version = o.statuses[k.ID].Version
		o.mu.RUnlock()
		if version == "" {
			version = o.defaultVersion(k)
		}
	}
	key := supervise.Key{Kind: k.ID, Version: version}

	if _, tracked := o.super.Get(key); !tracked {
		// Nothing tracked in this process. An instance may still be
		// running from an earlier invocation; sweep it by image name.
		logging.Debug("Orchestrator", "%s not tracked, sweeping by image name", key)
		if err := o.plat.KillByImageName(k.ExecutableName); err != nil {
			logging.Debug("Orchestrator", "Sweep of %s: %v", k.ExecutableName, err)
		}
		return nil
	}

	o.setState(k.ID, func(st *ServiceStatus) { st.State = StateStopping })
	logging.Info("Orchestrator", "Stopping %s", key)

	// The web-server engines get an image-name sweep after the
	// graceful path: their worker sub-processes can outlive the parent
	// handle.
	imageName := ""
	if k.WebServer {
		imageName = k.ExecutableName
	}
	if err := o.super.Terminate(ctx, key, stopGrace, imageName); err != nil {
		o.setState(k.ID, func(st *ServiceStatus) {
			st.State = StateError
			st.Error = err.Error()
		})
		return err
	}

	o.mu.Lock()
	if versions, ok := o.runningVersions[k.ID]; ok {
		delete(versions, version)
	}
	st := o.statuses[k.ID]
	if st.Version == version || !k.MultiVersion {
		st.State = StateStopped
		st.Error = ""
		st.Port = 0
		st.SecondaryPort = 0
		st.StartedAt = time.Time{}
	}
	o.mu.Unlock()

	if k.WebServer {
		o.allocator.ReleasePrivilegedPorts(k.ID)
	}
	return nil
}

// RestartService stops and starts the kind's active version.
func (o *Orchestrator) RestartService(ctx context.Context, kindID string) error {
	k, ok := catalog.Lookup(kindID)
	if !ok {
		return &UnknownServiceError{Kind: kindID}
	}
	o.mu.RLock()
	version := o.statuses[k.ID].Version
	o.mu.RUnlock()

	if err := o.StopService(ctx, kindID, version); err != nil {
		return err
	}

	// Brief settle so the released port is actually free again.
	select {
	case <-time.After(1 * time.Second):
	case <-ctx.Done():
		return ctx.Err()
	}

	_, err := o.StartService(ctx, kindID, version)
	return err
}

// StopAllServices performs the global shutdown: projects release their
// per-project ports first, then every tracked record is stopped
// gracefully, stragglers are force-killed, an image-name sweep reaps
// orphaned workers, and the ownership and version tables are reset.
func (o *Orchestrator) StopAllServices(ctx context.Context) error {
	if err := o.projects.StopAllProjects(ctx); err != nil {
		logging.Warn("Orchestrator", "Stopping projects: %v", err)
	}

	for _, rec := range o.super.Records() {
		k, ok := catalog.Lookup(string(rec.Key.Kind))
		imageName := ""
		if ok && k.WebServer {
			imageName = k.ExecutableName
		}
		if err := o.super.Terminate(ctx, rec.Key, stopGrace, imageName); err != nil {
			logging.Warn("Orchestrator", "Stopping %s: %v", rec.Key, err)
		}
	}

	o.super.KillAll()
	o.sweepOrphans()

	o.allocator.Reset()

	o.mu.Lock()
	o.runningVersions = make(map[catalog.Kind]map[string]RunningVersion)
	for _, st := range o.statuses {
		if st.State != StateNotInstalled {
			st.State = StateStopped
			st.Error = ""
			st.Port = 0
			st.SecondaryPort = 0
			st.Version = ""
			st.StartedAt = time.Time{}
		}
	}
	o.mu.Unlock()

	logging.Info("Orchestrator", "All services stopped")
	return nil
}

// sweepOrphans force-kills any process matching a known service image
// name. Graceful shutdown of the web-server engines is not 100%
// reliable, so this runs both at global shutdown and before a bulk
// start.
func (o *Orchestrator) sweepOrphans() {
	for _, k := range catalog.All() {
		if _, tracked := o.firstTrackedRecord(k.ID); tracked {
			// A live record means the engine is under management;
			// sweeping would kill it.
			continue
		}
		if err := o.plat.KillByImageName(k.ExecutableName); err != nil {
			logging.Debug("Orchestrator", "Sweep of %s: %v", k.ExecutableName, err)
		}
	}
}

func (o *Orchestrator) firstTrackedRecord(kind catalog.Kind) (*supervise.ProcessRecord, bool) {
	for _, rec := range o.super.Records() {
		if rec.Key.Kind == kind {
			return rec, true
		}
	}
	return nil, false
}
