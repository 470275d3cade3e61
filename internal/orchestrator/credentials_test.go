package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackctl/internal/catalog"
	"stackctl/internal/supervise"
)

func TestSyncCredentialsUpdatesSourceOfTruth(t *testing.T) {
	f := newTestFixture(t.TempDir(), "mysql@8.4")
	ctx := context.Background()

	// No database is running: sync only records the new pair.
	require.NoError(t, f.orch.SyncCredentials(ctx, "app", "s3cret"))
	assert.Empty(t, f.super.terminated)

	// The next start regenerates the init file with the new user.
	_, err := f.orch.StartService(ctx, "mysql", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"mysql@8.4:app"}, f.renderer.initFiles)
}

func TestStartMaintenanceRejectsNonDatabase(t *testing.T) {
	f := newTestFixture(t.TempDir(), "redis")

	err := f.orch.StartMaintenance(context.Background(), "redis", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maintenance")
}

func TestStartMaintenanceNotInstalled(t *testing.T) {
	f := newTestFixture(t.TempDir())

	err := f.orch.StartMaintenance(context.Background(), "mysql", "8.4")

	var notInstalled *NotInstalledError
	require.ErrorAs(t, err, &notInstalled)
}

func TestStartMaintenanceBootsWithoutNetwork(t *testing.T) {
	f := newTestFixture(t.TempDir(), "mariadb@11.4")

	require.NoError(t, f.orch.StartMaintenance(context.Background(), "mariadb", ""))

	in, ok := f.renderer.lastInput()
	require.True(t, ok)
	assert.True(t, in.Maintenance)
	assert.Zero(t, in.Port, "maintenance mode must not expose a TCP port")

	require.Len(t, f.super.spawned, 1)
	assert.Equal(t, supervise.Key{Kind: catalog.MariaDB, Version: "11.4"}, f.super.spawned[0])

	st, err := f.orch.GetServiceStatus("mariadb")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, st.State)
	assert.Zero(t, st.Port)
}

func TestStartMaintenanceReplacesRunningInstance(t *testing.T) {
	f := newTestFixture(t.TempDir(), "mysql@8.4")
	ctx := context.Background()

	_, err := f.orch.StartService(ctx, "mysql", "8.4")
	require.NoError(t, err)

	require.NoError(t, f.orch.StartMaintenance(ctx, "mysql", "8.4"))

	assert.Equal(t, []supervise.Key{{Kind: catalog.MySQL, Version: "8.4"}}, f.super.terminated)
	assert.Len(t, f.super.spawned, 2)
}
