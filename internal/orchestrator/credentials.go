package orchestrator

import (
	"context"
	"fmt"
	"time"

	"stackctl/internal/catalog"
	"stackctl/internal/configgen"
	"stackctl/internal/supervise"
	"stackctl/pkg/logging"
)

// credentialSettle is the extra wait after a restarted database
// becomes reachable: the init file's effect is asynchronous relative
// to "port now accepting connections".
const credentialSettle = 3 * time.Second

// SyncCredentials makes the supplied pair the source of truth and
// restarts every currently-running database version so the
// regenerated init file is re-executed. Restarts run in sequence, not
// parallel: concurrent restarts of two versions of one kind would
// contend for the same regenerated init file.
func (o *Orchestrator) SyncCredentials(ctx context.Context, user, password string) error {
	o.mu.Lock()
	o.dbUser = user
	o.dbPassword = password
	running := make(map[catalog.Kind][]string)
	for kind, versions := range o.runningVersions {
		for v := range versions {
			running[kind] = append(running[kind], v)
		}
	}
	o.mu.Unlock()

	for _, k := range catalog.Databases() {
		for _, version := range running[k.ID] {
			logging.Info("Orchestrator", "Restarting %s@%s to apply new credentials", k.ID, version)
			if err := o.StopService(ctx, string(k.ID), version); err != nil {
				return fmt.Errorf("stopping %s@%s for credential sync: %w", k.ID, version, err)
			}
			if _, err := o.StartService(ctx, string(k.ID), version); err != nil {
				return fmt.Errorf("restarting %s@%s with new credentials: %w", k.ID, version, err)
			}
			select {
			case <-time.After(credentialSettle):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	logging.Info("Orchestrator", "Credentials applied to all running database versions")
	return nil
}

// StartMaintenance boots a database version with authentication checks
// disabled and networking curtailed to the local pipe, for credential
// recovery. The instance is never exposed on the network.
func (o *Orchestrator) StartMaintenance(ctx context.Context, kindID, version string) error {
	k, ok := catalog.Lookup(kindID)
	if !ok {
		return &UnknownServiceError{Kind: kindID}
	}
	if !k.Database {
		return fmt.Errorf("%s does not support maintenance mode", kindID)
	}
	if version == "" {
		version = o.defaultVersion(k)
	}
	key := supervise.Key{Kind: k.ID, Version: version}

	// A normally-running instance must come down first; the
	// maintenance boot replaces it.
	if _, tracked := o.super.Get(key); tracked {
		if err := o.StopService(ctx, kindID, version); err != nil {
			return err
		}
	}

	if !o.inventory.IsInstalled(k, version) {
		return &NotInstalledError{Kind: kindID, Version: version, Path: o.inventory.ExecutablePath(k, version)}
	}

	if err := o.ensureDataDir(ctx, k, version); err != nil {
		return err
	}
	if _, err := o.renderer.CreateCredentialsInitFile(k, version, o.dbUser, o.dbPassword); err != nil {
		return err
	}

	confPath, err := o.renderer.Render(configgen.Input{
		Kind:        k,
		Version:     version,
		Maintenance: true,
	})
	if err != nil {
		return err
	}

	exe := o.inventory.ExecutablePath(k, version)
	if _, err := o.super.Spawn(ctx, key, exe, runArgs(k, confPath, 0, 0), nil, nil); err != nil {
		return err
	}

	pipePath := o.plat.PipePath(o.cfg.RunDir(), key.String())
	if err := o.prober.WaitUntilPipeHealthy(ctx, key.String(), pipePath, o.probeTimeout(k)); err != nil {
		return &HealthTimeoutError{Kind: kindID, Version: version, Err: err}
	}

	o.setState(k.ID, func(st *ServiceStatus) {
		st.State = StateRunning
		st.Error = ""
		st.Version = version
		st.Port = 0
		st.StartedAt = time.Now()
	})
	logging.Warn("Orchestrator", "%s running in maintenance mode: authentication disabled, pipe-only", key)
	return nil
}
