package config

import (
	"fmt"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure for stackctl.
type Config struct {
	// Root is the base directory holding bin/, data/, conf/, logs/
	// and run/. Defaults to ~/.stackctl.
	Root string `yaml:"root,omitempty"`

	Credentials CredentialsConfig `yaml:"credentials"`

	// Services holds optional per-kind overrides keyed by kind id.
	Services map[string]ServiceSettings `yaml:"services,omitempty"`

	// ProjectsFile points at the YAML file listing projects and their
	// virtual hosts. Defaults to <root>/projects.yaml.
	ProjectsFile string `yaml:"projectsFile,omitempty"`
}

// CredentialsConfig is the single source of truth for every relational
// database instance. It is re-applied on each startup via a generated
// init script, never stored per instance.
type CredentialsConfig struct {
	DBUser     string `yaml:"dbUser,omitempty"`
	DBPassword string `yaml:"dbPassword,omitempty"`
}

// ServiceSettings overrides catalog defaults for one kind.
type ServiceSettings struct {
	Port         int           `yaml:"port,omitempty"`
	ProbeTimeout time.Duration `yaml:"probeTimeout,omitempty"`
}

// UnmarshalYAML accepts human-friendly duration strings ("45s") for
// probeTimeout.
func (s *ServiceSettings) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Port         int    `yaml:"port"`
		ProbeTimeout string `yaml:"probeTimeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	s.Port = raw.Port
	if raw.ProbeTimeout != "" {
		d, err := time.ParseDuration(raw.ProbeTimeout)
		if err != nil {
			return fmt.Errorf("parsing probeTimeout %q: %w", raw.ProbeTimeout, err)
		}
		s.ProbeTimeout = d
	}
	return nil
}

// GetDefaultConfig returns the built-in defaults. Root is left empty
// here and resolved against the home directory by LoadConfig.
func GetDefaultConfig() Config {
	return Config{
		Credentials: CredentialsConfig{
			DBUser:     "root",
			DBPassword: "",
		},
	}
}

// DataDir returns the exclusive data directory for a (kind, version)
// key. Versions share nothing.
func (c Config) DataDir(kind, version string) string {
	if version != "" {
		return filepath.Join(c.Root, "data", kind+"-"+version)
	}
	return filepath.Join(c.Root, "data", kind)
}

// ConfDir returns the directory holding rendered config files.
func (c Config) ConfDir() string {
	return filepath.Join(c.Root, "conf")
}

// ConfigFilePath returns the rendered config file path for a
// (kind, version) key.
func (c Config) ConfigFilePath(kind, version, name string) string {
	if version != "" {
		return filepath.Join(c.ConfDir(), kind+"-"+version, name)
	}
	return filepath.Join(c.ConfDir(), kind, name)
}

// LogDir returns the directory service processes write their own log
// files into.
func (c Config) LogDir() string {
	return filepath.Join(c.Root, "logs")
}

// RunDir holds pid files, sockets and the maintenance pipe.
func (c Config) RunDir() string {
	return filepath.Join(c.Root, "run")
}

// VhostDir returns the directory web-server virtual-host fragments are
// rendered into for a given web-server kind.
func (c Config) VhostDir(kind string) string {
	return filepath.Join(c.ConfDir(), kind, "vhosts")
}

// GetDBUser implements the credentials source consumed by the
// orchestrator.
func (c Config) GetDBUser() string { return c.Credentials.DBUser }

// GetDBPassword implements the credentials source consumed by the
// orchestrator.
func (c Config) GetDBPassword() string { return c.Credentials.DBPassword }
