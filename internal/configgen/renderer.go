// Package configgen produces the on-disk configuration artifacts for a
// (kind, version, port) combination: the main config file, per-project
// virtual-host fragments for the web servers, and the credentials init
// script the database engines execute at startup. Every write is a
// full overwrite; nothing is ever patched in place.
package configgen

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"stackctl/internal/catalog"
	"stackctl/internal/config"
	"stackctl/internal/platform"
	"stackctl/internal/project"
	"stackctl/pkg/logging"
)

// Renderer writes config files under the configured root.
type Renderer struct {
	cfg  config.Config
	plat platform.Platform
}

// New creates a renderer for the given configuration.
func New(cfg config.Config, plat platform.Platform) *Renderer {
	return &Renderer{cfg: cfg, plat: plat}
}

// Input describes one render request.
type Input struct {
	Kind    catalog.ServiceKind
	Version string

	// Port is the resolved primary port; TLSPort is set for web
	// servers only.
	Port    int
	TLSPort int

	// VirtualHosts are rendered as include fragments for web servers.
	VirtualHosts []project.VirtualHost

	// Maintenance renders the skip-grant variant for database kinds:
	// authentication off, networking curtailed to the local pipe.
	Maintenance bool
}

func label(k catalog.ServiceKind, version string) string {
	if version != "" {
		return string(k.ID) + "-" + version
	}
	return string(k.ID)
}

func configFileName(k catalog.ServiceKind) string {
	switch k.ID {
	case catalog.Nginx:
		return "nginx.conf"
	case catalog.Apache:
		return "httpd.conf"
	case catalog.MySQL, catalog.MariaDB:
		return "my.cnf"
	case catalog.Redis:
		return "redis.conf"
	default:
		return ""
	}
}

// Render writes the main config file for the request and returns its
// path. Kinds that are configured purely by command-line flags
// (mailpit, adminer) have no config file and get an empty path.
func (r *Renderer) Render(in Input) (string, error) {
	name := configFileName(in.Kind)
	if name == "" {
		return "", nil
	}

	lbl := label(in.Kind, in.Version)
	data := renderData{
		Label:       lbl,
		Port:        in.Port,
		TLSPort:     in.TLSPort,
		DataDir:     r.cfg.DataDir(string(in.Kind.ID), in.Version),
		LogDir:      r.cfg.LogDir(),
		RunDir:      r.cfg.RunDir(),
		VhostDir:    r.cfg.VhostDir(string(in.Kind.ID)),
		Maintenance: in.Maintenance,
	}
	if in.Kind.Database {
		data.InitFile = r.CredentialsInitFilePath(in.Kind, in.Version)
		data.PipePath = r.plat.PipePath(r.cfg.RunDir(), lbl)
	}

	var tmpl *template.Template
	switch in.Kind.ID {
	case catalog.Nginx:
		tmpl = nginxTemplate
	case catalog.Apache:
		tmpl = apacheTemplate
	case catalog.MySQL, catalog.MariaDB:
		tmpl = mysqlTemplate
	case catalog.Redis:
		tmpl = redisTemplate
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}

	path := r.cfg.ConfigFilePath(string(in.Kind.ID), in.Version, name)
	if err := writeFile(path, buf.Bytes()); err != nil {
		return "", err
	}

	if in.Kind.WebServer {
		if err := r.RenderVhostFragments(in.Kind, in.Port, in.TLSPort, in.VirtualHosts); err != nil {
			return "", err
		}
	}

	logging.Debug("ConfigGen", "Rendered %s for %s", name, lbl)
	return path, nil
}

// RenderVhostFragments writes one include fragment per virtual host
// into the kind's vhost directory, replacing whatever was there. The
// fragments hard-code the resolved ports, so they must be regenerated
// whenever the ports change.
func (r *Renderer) RenderVhostFragments(k catalog.ServiceKind, port, tlsPort int, vhosts []project.VirtualHost) error {
	dir := r.cfg.VhostDir(string(k.ID))
	if err := r.RemoveVhostFragments(k); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating vhost dir %s: %w", dir, err)
	}

	var tmpl *template.Template
	switch k.ID {
	case catalog.Nginx:
		tmpl = nginxVhostTemplate
	case catalog.Apache:
		tmpl = apacheVhostTemplate
	default:
		return nil
	}

	for _, vh := range vhosts {
		data := vhostData{
			Domain:   vh.Domain,
			Port:     port,
			TLSPort:  tlsPort,
			DocRoot:  vh.DocRoot,
			TLS:      vh.TLS && vh.CertFile != "" && vh.KeyFile != "",
			CertFile: vh.CertFile,
			KeyFile:  vh.KeyFile,
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return fmt.Errorf("rendering vhost %s: %w", vh.Domain, err)
		}
		path := filepath.Join(dir, vh.Domain+".conf")
		if err := writeFile(path, buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// RemoveVhostFragments deletes all fragments for a kind. Called when
// the web server falls back to its alternate pair: the existing
// fragments hard-code the old port and are stale.
func (r *Renderer) RemoveVhostFragments(k catalog.ServiceKind) error {
	dir := r.cfg.VhostDir(string(k.ID))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading vhost dir %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".conf" {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("removing stale vhost fragment %s: %w", e.Name(), err)
		}
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
