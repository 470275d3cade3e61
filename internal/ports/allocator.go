// Package ports decides which TCP port a service actually binds. It
// owns the one piece of cross-kind coordination in stackctl: the
// first-come-first-served ledger for the privileged 80/443 pair
// contended by the web-server kinds.
package ports

import (
	"fmt"
	"net"
	"sync"

	"stackctl/internal/catalog"
	"stackctl/pkg/logging"
)

// scanWindow bounds the upward search for a free non-privileged port.
const scanWindow = 100

// Allocator hands out ports and tracks privileged-pair ownership.
// A single instance is owned by the orchestrator; there are no
// ambient globals.
type Allocator struct {
	mu sync.Mutex

	// standardOwner is the web-server kind currently holding 80/443,
	// empty when unowned. At most one owner at a time.
	standardOwner catalog.Kind

	// probe reports whether a port can be bound right now. Swapped in
	// tests.
	probe func(port int) bool
}

// NewAllocator creates an allocator using live bind probes.
func NewAllocator() *Allocator {
	return &Allocator{probe: probePort}
}

func probePort(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	l.Close()
	return true
}

// ReservePrivilegedPorts resolves the HTTP/HTTPS pair for a web-server
// kind. If the pair is unowned and both ports probe free, the caller
// claims ownership and gets 80/443. Otherwise the caller receives its
// fixed alternate pair without probing — re-probing here would race a
// competitor that believes it holds the same ports.
func (a *Allocator) ReservePrivilegedPorts(k catalog.ServiceKind) (httpPort, tlsPort int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.standardOwner == k.ID {
		return k.DefaultPort, k.SecondaryPort
	}
	if a.standardOwner != "" {
		logging.Debug("Ports", "%s holds the standard pair, %s falls back to %d/%d",
			a.standardOwner, k.ID, k.AlternatePort, k.AlternateTLSPort)
		return k.AlternatePort, k.AlternateTLSPort
	}

	if a.probe(k.DefaultPort) && a.probe(k.SecondaryPort) {
		a.standardOwner = k.ID
		logging.Info("Ports", "%s claimed the standard pair %d/%d", k.ID, k.DefaultPort, k.SecondaryPort)
		return k.DefaultPort, k.SecondaryPort
	}

	logging.Debug("Ports", "standard pair busy, %s falls back to %d/%d", k.ID, k.AlternatePort, k.AlternateTLSPort)
	return k.AlternatePort, k.AlternateTLSPort
}

// ReleasePrivilegedPorts clears ownership if held by the given kind.
// Called when the owner stops or is forced onto its alternate pair.
func (a *Allocator) ReleasePrivilegedPorts(kind catalog.Kind) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.standardOwner == kind {
		a.standardOwner = ""
		logging.Debug("Ports", "%s released the standard pair", kind)
	}
}

// Reset clears ownership unconditionally. Used by the global shutdown.
func (a *Allocator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.standardOwner = ""
}

// StandardPortOwner returns the current owner of 80/443, empty when
// unowned.
func (a *Allocator) StandardPortOwner() catalog.Kind {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.standardOwner
}

// PickPort probes the requested port and, if busy, scans upward for
// the next free port within the window. An exhausted window is a hard
// error that aborts the start attempt.
func (a *Allocator) PickPort(defaultPort int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for port := defaultPort; port < defaultPort+scanWindow; port++ {
		if a.probe(port) {
			if port != defaultPort {
				logging.Info("Ports", "port %d busy, using %d", defaultPort, port)
			}
			return port, nil
		}
	}
	return 0, fmt.Errorf("no free port in [%d, %d)", defaultPort, defaultPort+scanWindow)
}
