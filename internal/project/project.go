package project

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"stackctl/pkg/logging"
)

// VirtualHost is one per-project virtual-host record consulted when a
// web-server config is rendered.
type VirtualHost struct {
	Domain string `yaml:"domain"`
	Port   int    `yaml:"port"`
	// WebServer names the owning web-server kind ("nginx" or "apache").
	WebServer string `yaml:"webServer"`
	DocRoot   string `yaml:"docRoot"`
	// TLS requests an HTTPS server block with the per-domain
	// certificate pair supplied by the SSL collaborator.
	TLS      bool   `yaml:"tls,omitempty"`
	CertFile string `yaml:"certFile,omitempty"`
	KeyFile  string `yaml:"keyFile,omitempty"`
}

// Project groups the virtual hosts of one developer project. The
// optional stop command releases any per-project listeners (watchers,
// dev servers) before a global shutdown.
type Project struct {
	Name         string        `yaml:"name"`
	VirtualHosts []VirtualHost `yaml:"virtualHosts,omitempty"`
	StopCommand  []string      `yaml:"stopCommand,omitempty"`
}

// Store is the Project collaborator: a read-only view of the project
// file plus the pre-shutdown stop hook.
type Store struct {
	path     string
	projects []Project
}

// Load reads the projects file. A missing file is not an error; the
// store is simply empty.
func Load(path string) (*Store, error) {
	s := &Store{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading projects file %s: %w", path, err)
	}
	var doc struct {
		Projects []Project `yaml:"projects"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing projects file %s: %w", path, err)
	}
	s.projects = doc.Projects
	return s, nil
}

// Projects returns all configured projects.
func (s *Store) Projects() []Project {
	out := make([]Project, len(s.projects))
	copy(out, s.projects)
	return out
}

// VirtualHostsFor returns the virtual-host records owned by a
// web-server kind.
func (s *Store) VirtualHostsFor(webServer string) []VirtualHost {
	var out []VirtualHost
	for _, p := range s.projects {
		for _, vh := range p.VirtualHosts {
			if vh.WebServer == webServer {
				out = append(out, vh)
			}
		}
	}
	return out
}

// StopAllProjects runs each project's stop command, if any, so
// per-project ports are released before the global shutdown proceeds.
// Failures are logged per project and do not abort the sweep.
func (s *Store) StopAllProjects(ctx context.Context) error {
	var failed []string
	for _, p := range s.projects {
		if len(p.StopCommand) == 0 {
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		cmd := exec.CommandContext(cctx, p.StopCommand[0], p.StopCommand[1:]...)
		out, err := cmd.CombinedOutput()
		cancel()
		if err != nil {
			logging.Error("Projects", err, "Stop command for project %s failed: %s", p.Name, strings.TrimSpace(string(out)))
			failed = append(failed, p.Name)
			continue
		}
		logging.Debug("Projects", "Stopped project %s", p.Name)
	}
	if len(failed) > 0 {
		return fmt.Errorf("stop command failed for projects: %s", strings.Join(failed, ", "))
	}
	return nil
}
