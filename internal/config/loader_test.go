package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withHome redirects home-directory resolution to a temp dir for the
// duration of one test.
func withHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	origHome := osUserHomeDir
	osUserHomeDir = func() (string, error) { return home, nil }
	t.Cleanup(func() { osUserHomeDir = origHome })
	return home
}

func writeUserConfig(t *testing.T, home, content string) {
	t.Helper()
	dir := filepath.Join(home, userConfigDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte(content), 0o644))
}

func TestLoadConfigDefaults(t *testing.T) {
	home := withHome(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".stackctl"), cfg.Root)
	assert.Equal(t, filepath.Join(cfg.Root, "projects.yaml"), cfg.ProjectsFile)
	assert.Equal(t, "root", cfg.GetDBUser())
	assert.Empty(t, cfg.GetDBPassword())
}

func TestLoadConfigUserOverlay(t *testing.T) {
	home := withHome(t)
	writeUserConfig(t, home, `
root: /opt/devstack
credentials:
  dbUser: dev
  dbPassword: hunter2
services:
  redis:
    port: 6400
  mysql:
    probeTimeout: 45s
`)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/opt/devstack", cfg.Root)
	assert.Equal(t, filepath.Join("/opt/devstack", "projects.yaml"), cfg.ProjectsFile)
	assert.Equal(t, "dev", cfg.GetDBUser())
	assert.Equal(t, "hunter2", cfg.GetDBPassword())
	assert.Equal(t, 6400, cfg.Services["redis"].Port)
	assert.Equal(t, 45*time.Second, cfg.Services["mysql"].ProbeTimeout)
}

func TestLoadConfigPartialOverlayKeepsDefaults(t *testing.T) {
	home := withHome(t)
	writeUserConfig(t, home, "credentials:\n  dbPassword: secret\n")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	// The user only set the password; user and root stay at defaults.
	assert.Equal(t, "root", cfg.GetDBUser())
	assert.Equal(t, "secret", cfg.GetDBPassword())
	assert.Equal(t, filepath.Join(home, ".stackctl"), cfg.Root)
}

func TestLoadConfigMalformedFile(t *testing.T) {
	home := withHome(t)
	writeUserConfig(t, home, "root: [not: valid\n")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user config")
}

func TestMergeConfigsServiceSettings(t *testing.T) {
	base := GetDefaultConfig()
	base.Services = map[string]ServiceSettings{
		"redis": {Port: 6379, ProbeTimeout: 10 * time.Second},
	}
	overlay := Config{Services: map[string]ServiceSettings{
		"redis": {Port: 6400},
	}}

	merged := mergeConfigs(base, overlay)

	// Port is overridden, timeout survives.
	assert.Equal(t, 6400, merged.Services["redis"].Port)
	assert.Equal(t, 10*time.Second, merged.Services["redis"].ProbeTimeout)
}

func TestPathHelpers(t *testing.T) {
	cfg := Config{Root: "/stack"}

	assert.Equal(t, filepath.Join("/stack", "data", "mysql-8.4"), cfg.DataDir("mysql", "8.4"))
	assert.Equal(t, filepath.Join("/stack", "data", "redis"), cfg.DataDir("redis", ""))
	assert.Equal(t, filepath.Join("/stack", "conf", "mysql-8.4", "my.cnf"), cfg.ConfigFilePath("mysql", "8.4", "my.cnf"))
	assert.Equal(t, filepath.Join("/stack", "conf", "nginx", "vhosts"), cfg.VhostDir("nginx"))
	assert.Equal(t, filepath.Join("/stack", "logs"), cfg.LogDir())
	assert.Equal(t, filepath.Join("/stack", "run"), cfg.RunDir())
}
