package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackctl/internal/catalog"
	"stackctl/internal/supervise"
)

func TestStopServiceReleasesStandardPorts(t *testing.T) {
	f := newTestFixture(t.TempDir(), "nginx")
	ctx := context.Background()

	_, err := f.orch.StartService(ctx, "nginx", "")
	require.NoError(t, err)
	require.Equal(t, catalog.Nginx, f.orch.StandardPortOwner())

	require.NoError(t, f.orch.StopService(ctx, "nginx", ""))

	st, err := f.orch.GetServiceStatus("nginx")
	require.NoError(t, err)
	assert.Equal(t, StateStopped, st.State)
	assert.Zero(t, st.Port)
	assert.Zero(t, st.SecondaryPort)
	assert.Equal(t, catalog.Kind(""), f.orch.StandardPortOwner())
	assert.Equal(t, []supervise.Key{{Kind: catalog.Nginx}}, f.super.terminated)
}

func TestStopServiceUntrackedSweepsImageName(t *testing.T) {
	f := newTestFixture(t.TempDir(), "redis")

	require.NoError(t, f.orch.StopService(context.Background(), "redis", ""))

	// No record in this process: fall back to the image-name sweep so
	// instances from an earlier invocation still come down.
	assert.Empty(t, f.super.terminated)
	assert.Equal(t, []string{"redis-server"}, f.plat.imageKills)
}

func TestStopOneVersionKeepsTheOther(t *testing.T) {
	f := newTestFixture(t.TempDir(), "mysql@5.7", "mysql@8.4")
	ctx := context.Background()

	_, err := f.orch.StartService(ctx, "mysql", "5.7")
	require.NoError(t, err)
	_, err = f.orch.StartService(ctx, "mysql", "8.4")
	require.NoError(t, err)

	require.NoError(t, f.orch.StopService(ctx, "mysql", "5.7"))

	assert.False(t, f.orch.IsVersionRunning("mysql", "5.7"))
	assert.True(t, f.orch.IsVersionRunning("mysql", "8.4"))

	versions := f.orch.GetRunningVersions("mysql")
	require.Len(t, versions, 1)
	assert.Equal(t, "8.4", versions[0].Version)
}

func TestRestartService(t *testing.T) {
	f := newTestFixture(t.TempDir(), "redis")
	ctx := context.Background()

	_, err := f.orch.StartService(ctx, "redis", "")
	require.NoError(t, err)

	require.NoError(t, f.orch.RestartService(ctx, "redis"))

	st, err := f.orch.GetServiceStatus("redis")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, st.State)
	assert.Len(t, f.super.terminated, 1)
	assert.Len(t, f.super.spawned, 2)
}

func TestStopAllServices(t *testing.T) {
	f := newTestFixture(t.TempDir(), "nginx", "redis", "mysql@8.4")
	ctx := context.Background()

	require.NoError(t, f.orch.StartAllServices(ctx))
	require.NoError(t, f.orch.StopAllServices(ctx))

	// Projects released their ports before the services came down.
	assert.Equal(t, 1, f.projects.stopped)
	assert.Equal(t, 1, f.super.killAlls)
	assert.Equal(t, 1, f.allocator.resets)
	assert.Equal(t, catalog.Kind(""), f.orch.StandardPortOwner())
	assert.Empty(t, f.orch.GetRunningVersions("mysql"))

	for kind, st := range f.orch.GetAllServicesStatus() {
		if st.State == StateNotInstalled {
			continue
		}
		assert.Equal(t, StateStopped, st.State, "kind %s", kind)
		assert.Zero(t, st.Port, "kind %s", kind)
	}
}

func TestStopAllServicesSweepSkipsNothingWhenIdle(t *testing.T) {
	f := newTestFixture(t.TempDir(), "redis")

	require.NoError(t, f.orch.StopAllServices(context.Background()))

	// With no tracked records every known image name gets swept.
	for _, k := range catalog.All() {
		assert.Contains(t, f.plat.imageKills, k.ExecutableName)
	}
}

func TestHandleExitMarksStopped(t *testing.T) {
	f := newTestFixture(t.TempDir(), "nginx")
	ctx := context.Background()

	_, err := f.orch.StartService(ctx, "nginx", "")
	require.NoError(t, err)

	// Simulate the engine dying underneath us.
	delete(f.super.records, supervise.Key{Kind: catalog.Nginx})
	f.orch.handleExit(supervise.ExitEvent{Key: supervise.Key{Kind: catalog.Nginx}, PID: 1001})

	st, err := f.orch.GetServiceStatus("nginx")
	require.NoError(t, err)
	assert.Equal(t, StateStopped, st.State)
	assert.Zero(t, st.Port)
	// The standard pair is free for the other web server again.
	assert.Equal(t, catalog.Kind(""), f.orch.StandardPortOwner())
}

func TestHandleExitSecondaryVersion(t *testing.T) {
	f := newTestFixture(t.TempDir(), "mysql@5.7", "mysql@8.4")
	ctx := context.Background()

	_, err := f.orch.StartService(ctx, "mysql", "5.7")
	require.NoError(t, err)
	_, err = f.orch.StartService(ctx, "mysql", "8.4")
	require.NoError(t, err)

	// 5.7 dies; the active (most recently started) version is 8.4, so
	// the kind stays running.
	f.orch.handleExit(supervise.ExitEvent{Key: supervise.Key{Kind: catalog.MySQL, Version: "5.7"}})

	st, err := f.orch.GetServiceStatus("mysql")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, st.State)
	require.Len(t, st.RunningVersions, 1)
	assert.Equal(t, "8.4", st.RunningVersions[0].Version)
}
