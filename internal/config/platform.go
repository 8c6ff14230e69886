package config

import (
	"path/filepath"
	"runtime"
)

// LibraryExt returns the dynamic-library suffix for the running platform.
// Modules are built with -buildmode=plugin, which produces .so files on
// every supported platform. Every path that depends on the platform goes
// through this one function.
func LibraryExt() string {
	if runtime.GOOS == "windows" {
		return ".dll"
	}
	return ".so"
}

// Path resolves where the module's library lives: the explicit location
// when one was configured, otherwise mods_dir/<name> with the platform
// suffix.
func (m ModuleConfig) Path(modsDir string) string {
	if m.Location != "" {
		return m.Location
	}
	return filepath.Join(modsDir, m.Name+LibraryExt())
}
