package catalog

import (
	"hash/fnv"
	"time"
)

// Kind identifies one of the fixed service kinds managed by stackctl.
type Kind string

const (
	Nginx   Kind = "nginx"
	Apache  Kind = "apache"
	MySQL   Kind = "mysql"
	MariaDB Kind = "mariadb"
	Redis   Kind = "redis"
	Mailpit Kind = "mailpit"
	Adminer Kind = "adminer"
)

// ServiceKind is an immutable catalog entry describing one background
// server type. Entries are created once at startup and never mutated.
type ServiceKind struct {
	ID          Kind
	DisplayName string

	// DefaultPort is the port the service binds when nothing else is
	// in the way. SecondaryPort is the TLS port for web servers and
	// the SMTP port for mailpit; zero when the kind has none.
	DefaultPort   int
	SecondaryPort int

	// AlternatePort / AlternateTLSPort are the fixed fallback pair a
	// web server receives when it loses the 80/443 negotiation.
	AlternatePort    int
	AlternateTLSPort int

	// MultiVersion kinds may run several releases side by side, each
	// with its own data directory, config file and port.
	MultiVersion bool

	// WebServer kinds contend for the privileged port pair. Database
	// kinds get a credentials init script and a data-dir bootstrap.
	WebServer bool
	Database  bool

	// ExecutableName is the bare image name used both to locate the
	// binary under the inventory root and for image-name sweeps.
	ExecutableName string

	ProbeTimeout time.Duration
}

var kinds = []ServiceKind{
	{
		ID:               Nginx,
		DisplayName:      "Nginx",
		DefaultPort:      80,
		SecondaryPort:    443,
		AlternatePort:    8081,
		AlternateTLSPort: 8443,
		WebServer:        true,
		ExecutableName:   "nginx",
		ProbeTimeout:     15 * time.Second,
	},
	{
		ID:               Apache,
		DisplayName:      "Apache HTTP Server",
		DefaultPort:      80,
		SecondaryPort:    443,
		AlternatePort:    8082,
		AlternateTLSPort: 8444,
		WebServer:        true,
		ExecutableName:   "httpd",
		ProbeTimeout:     15 * time.Second,
	},
	{
		ID:             MySQL,
		DisplayName:    "MySQL",
		DefaultPort:    3306,
		MultiVersion:   true,
		Database:       true,
		ExecutableName: "mysqld",
		ProbeTimeout:   30 * time.Second,
	},
	{
		ID:             MariaDB,
		DisplayName:    "MariaDB",
		DefaultPort:    3307,
		MultiVersion:   true,
		Database:       true,
		ExecutableName: "mariadbd",
		ProbeTimeout:   30 * time.Second,
	},
	{
		ID:             Redis,
		DisplayName:    "Redis",
		DefaultPort:    6379,
		ExecutableName: "redis-server",
		ProbeTimeout:   10 * time.Second,
	},
	{
		ID:             Mailpit,
		DisplayName:    "Mailpit",
		DefaultPort:    8025,
		SecondaryPort:  1025,
		ExecutableName: "mailpit",
		ProbeTimeout:   8 * time.Second,
	},
	{
		ID:             Adminer,
		DisplayName:    "Adminer",
		DefaultPort:    8091,
		ExecutableName: "adminer",
		ProbeTimeout:   8 * time.Second,
	},
}

// versionOffsets maps known releases of multi-version kinds to a port
// offset from the kind's default, so co-installed versions never
// collide by default. Offsets stay below 10; hashed fallbacks for
// unknown versions start at 10.
var versionOffsets = map[Kind]map[string]int{
	MySQL: {
		"5.7": 0,
		"8.0": 2,
		"8.4": 4,
		"9.0": 6,
	},
	MariaDB: {
		"10.6":  0,
		"10.11": 2,
		"11.4":  4,
	},
}

// All returns the full catalog in stable order.
func All() []ServiceKind {
	out := make([]ServiceKind, len(kinds))
	copy(out, kinds)
	return out
}

// Lookup resolves a kind identifier to its catalog entry.
func Lookup(id string) (ServiceKind, bool) {
	for _, k := range kinds {
		if string(k.ID) == id {
			return k, true
		}
	}
	return ServiceKind{}, false
}

// WebServers returns the kinds that contend for the privileged pair.
func WebServers() []ServiceKind {
	var out []ServiceKind
	for _, k := range kinds {
		if k.WebServer {
			out = append(out, k)
		}
	}
	return out
}

// Databases returns the relational database kinds.
func Databases() []ServiceKind {
	var out []ServiceKind
	for _, k := range kinds {
		if k.Database {
			out = append(out, k)
		}
	}
	return out
}

// VersionOffset returns the port offset for a version of a
// multi-version kind. Unknown versions fall back to a deterministic
// hash-derived offset in [10, 99] so they cannot collide with the
// curated table.
func VersionOffset(kind Kind, version string) int {
	if version == "" {
		return 0
	}
	if table, ok := versionOffsets[kind]; ok {
		if off, ok := table[version]; ok {
			return off
		}
	}
	h := fnv.New32a()
	h.Write([]byte(string(kind) + "@" + version))
	return 10 + int(h.Sum32()%90)
}

// PortFor returns the version-adjusted default port for a kind.
func PortFor(k ServiceKind, version string) int {
	if !k.MultiVersion {
		return k.DefaultPort
	}
	return k.DefaultPort + VersionOffset(k.ID, version)
}

// DefaultVersion returns the curated preferred release of a
// multi-version kind; single-version kinds have no version at all.
// This is a preference, not a promise: callers resolving a versionless
// request cross-check it against the installed inventory.
func DefaultVersion(k ServiceKind) string {
	switch k.ID {
	case MySQL:
		return "8.4"
	case MariaDB:
		return "11.4"
	default:
		return ""
	}
}
