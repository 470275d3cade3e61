package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir

const (
	userConfigDir  = ".config/stackctl"
	configFileName = "config.yaml"
	defaultRootDir = ".stackctl"
)

// LoadConfig loads the stackctl configuration by layering the built-in
// defaults with the optional user config file.
func LoadConfig() (Config, error) {
	cfg := GetDefaultConfig()

	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// User config is optional; warn and continue on defaults.
		fmt.Fprintf(os.Stderr, "Warning: Could not determine user config path: %v\n", err)
	} else {
		if _, err := os.Stat(userConfigPath); !os.IsNotExist(err) {
			userCfg, err := loadConfigFromFile(userConfigPath)
			if err != nil {
				return Config{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
			}
			cfg = mergeConfigs(cfg, userCfg)
		}
	}

	if cfg.Root == "" {
		home, err := osUserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolving default root: %w", err)
		}
		cfg.Root = filepath.Join(home, defaultRootDir)
	}
	if cfg.ProjectsFile == "" {
		cfg.ProjectsFile = filepath.Join(cfg.Root, "projects.yaml")
	}

	return cfg, nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

// loadConfigFromFile loads a Config from a YAML file.
func loadConfigFromFile(filePath string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// mergeConfigs merges 'overlay' config into 'base' config.
func mergeConfigs(base, overlay Config) Config {
	merged := base

	if overlay.Root != "" {
		merged.Root = overlay.Root
	}
	if overlay.ProjectsFile != "" {
		merged.ProjectsFile = overlay.ProjectsFile
	}
	if overlay.Credentials.DBUser != "" {
		merged.Credentials.DBUser = overlay.Credentials.DBUser
	}
	if overlay.Credentials.DBPassword != "" {
		merged.Credentials.DBPassword = overlay.Credentials.DBPassword
	}

	if len(overlay.Services) > 0 {
		if merged.Services == nil {
			merged.Services = make(map[string]ServiceSettings)
		}
		for kind, settings := range overlay.Services {
			current := merged.Services[kind]
			if settings.Port != 0 {
				current.Port = settings.Port
			}
			if settings.ProbeTimeout != 0 {
				current.ProbeTimeout = settings.ProbeTimeout
			}
			merged.Services[kind] = current
		}
	}

	return merged
}
