package configgen

import (
	"bytes"
	"fmt"

	"stackctl/internal/catalog"
	"stackctl/pkg/logging"
)

// CredentialsInitFilePath returns where the init script for a database
// (kind, version) lives. The engine executes it once at startup with
// server privileges, before accepting client connections.
func (r *Renderer) CredentialsInitFilePath(k catalog.ServiceKind, version string) string {
	return r.cfg.ConfigFilePath(string(k.ID), version, "init.sql")
}

// CreateCredentialsInitFile regenerates the init script that forces
// the engine's user/password state to match the externally supplied
// credentials. The script is rewritten on every start so credential
// changes take effect on the next boot of each instance.
func (r *Renderer) CreateCredentialsInitFile(k catalog.ServiceKind, version, user, password string) (string, error) {
	var buf bytes.Buffer

	// root@localhost always exists; the configured user is created if
	// missing and repointed at the current password either way.
	fmt.Fprintf(&buf, "ALTER USER 'root'@'localhost' IDENTIFIED BY '%s';\n", escapeSQL(password))
	if user != "root" {
		fmt.Fprintf(&buf, "CREATE USER IF NOT EXISTS '%s'@'localhost' IDENTIFIED BY '%s';\n", escapeSQL(user), escapeSQL(password))
		fmt.Fprintf(&buf, "ALTER USER '%s'@'localhost' IDENTIFIED BY '%s';\n", escapeSQL(user), escapeSQL(password))
		fmt.Fprintf(&buf, "GRANT ALL PRIVILEGES ON *.* TO '%s'@'localhost' WITH GRANT OPTION;\n", escapeSQL(user))
	}
	buf.WriteString("FLUSH PRIVILEGES;\n")

	path := r.CredentialsInitFilePath(k, version)
	if err := writeFile(path, buf.Bytes()); err != nil {
		return "", err
	}
	logging.Debug("ConfigGen", "Regenerated credentials init file for %s", label(k, version))
	return path, nil
}

func escapeSQL(s string) string {
	var out []rune
	for _, r := range s {
		switch r {
		case '\'', '\\':
			out = append(out, '\\', r)
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
