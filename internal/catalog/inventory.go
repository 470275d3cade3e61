package catalog

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
)

// Inventory reports which (kind, version) executables are actually
// present on disk. Binaries live under
// <root>/bin/<kind>/<version>/<executable> for multi-version kinds and
// <root>/bin/<kind>/<executable> for the rest. Installation itself is
// out of scope; this only looks.
type Inventory struct {
	root string
}

// NewInventory creates an inventory rooted at the given directory.
func NewInventory(root string) *Inventory {
	return &Inventory{root: root}
}

func exeName(k ServiceKind) string {
	if runtime.GOOS == "windows" {
		return k.ExecutableName + ".exe"
	}
	return k.ExecutableName
}

// ExecutablePath returns the expected path of the binary for a
// (kind, version) pair. The file may or may not exist; callers use
// IsInstalled to check.
func (inv *Inventory) ExecutablePath(k ServiceKind, version string) string {
	if k.MultiVersion && version != "" {
		return filepath.Join(inv.root, "bin", string(k.ID), version, exeName(k))
	}
	return filepath.Join(inv.root, "bin", string(k.ID), exeName(k))
}

// IsInstalled reports whether the binary for a (kind, version) pair
// exists on disk.
func (inv *Inventory) IsInstalled(k ServiceKind, version string) bool {
	info, err := os.Stat(inv.ExecutablePath(k, version))
	return err == nil && !info.IsDir()
}

// InstalledVersions lists the versions of a multi-version kind that
// have a binary present, sorted lexically. For single-version kinds it
// returns nil; use IsInstalled instead.
func (inv *Inventory) InstalledVersions(k ServiceKind) []string {
	if !k.MultiVersion {
		return nil
	}
	entries, err := os.ReadDir(filepath.Join(inv.root, "bin", string(k.ID)))
	if err != nil {
		return nil
	}
	var versions []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if inv.IsInstalled(k, e.Name()) {
			versions = append(versions, e.Name())
		}
	}
	sort.Strings(versions)
	return versions
}
