package orchestrator

import (
	"fmt"
	"strings"
)

// The orchestrator surfaces a small typed taxonomy so callers can act
// on the failure tier: binary existence is checked before the config
// self-test, which runs before the reachability probe. Each tier fails
// fast with a specific message before the next, more expensive tier.

// UnknownServiceError reports a kind identifier that is not in the
// catalog.
type UnknownServiceError struct {
	Kind string
}

func (e *UnknownServiceError) Error() string {
	return fmt.Sprintf("unknown service %q", e.Kind)
}

// NotInstalledError reports that the executable for a (kind, version)
// is absent from the binary inventory.
type NotInstalledError struct {
	Kind    string
	Version string
	Path    string
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("%s is not installed (no binary at %s)", keyText(e.Kind, e.Version), e.Path)
}

// ConfigInvalidError reports a config self-test failure that is not a
// port-bind conflict. The self-test output is surfaced verbatim.
type ConfigInvalidError struct {
	Kind    string
	Version string
	Output  string
}

func (e *ConfigInvalidError) Error() string {
	return fmt.Sprintf("%s config rejected by self-test: %s", keyText(e.Kind, e.Version), strings.TrimSpace(e.Output))
}

// PortUnavailableError reports that no usable port could be found,
// either because the scan window was exhausted or because the
// alternate-pair retry also failed to bind.
type PortUnavailableError struct {
	Kind    string
	Version string
	Err     error
}

func (e *PortUnavailableError) Error() string {
	return fmt.Sprintf("%s: no usable port: %v", keyText(e.Kind, e.Version), e.Err)
}

func (e *PortUnavailableError) Unwrap() error { return e.Err }

// HealthTimeoutError reports that a process spawned but never became
// reachable within its deadline.
type HealthTimeoutError struct {
	Kind    string
	Version string
	Err     error
}

func (e *HealthTimeoutError) Error() string {
	return fmt.Sprintf("%s spawned but never became reachable: %v", keyText(e.Kind, e.Version), e.Err)
}

func (e *HealthTimeoutError) Unwrap() error { return e.Err }

// InitializationError reports that first-run data-directory setup
// failed for a (kind, version).
type InitializationError struct {
	Kind    string
	Version string
	Err     error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("%s: data directory initialization failed: %v", keyText(e.Kind, e.Version), e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// PartialStartError reports a bulk start where some non-critical
// services failed. The batch itself completed.
type PartialStartError struct {
	Failures map[string]error
}

func (e *PartialStartError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for label, err := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", label, err))
	}
	return fmt.Sprintf("%d service(s) failed to start: %s", len(e.Failures), strings.Join(parts, "; "))
}

func keyText(kind, version string) string {
	if version == "" {
		return kind
	}
	return kind + "@" + version
}
