package update

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// Detect returns the current platform (OS and architecture)
func Detect() Platform {
	return Platform{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}
}

// BinaryName returns the launcher file name for this platform,
// e.g. "launcher-linux-amd64" or "launcher-windows-amd64.exe".
func (p Platform) BinaryName() string {
	name := fmt.Sprintf("launcher-%s-%s", p.OS, p.Arch)
	if p.IsWindows() {
		name += ".exe"
	}
	return name
}

// IsWindows reports whether binaries on this platform are native .exe files.
func (p Platform) IsWindows() bool {
	return p.OS == "windows"
}

// IsSupported returns true if this platform is supported
func (p Platform) IsSupported() bool {
	supportedPlatforms := map[string][]string{
		"darwin":  {"amd64", "arm64"},
		"linux":   {"amd64", "arm64"},
		"windows": {"amd64"},
	}

	archs, ok := supportedPlatforms[p.OS]
	if !ok {
		return false
	}

	for _, arch := range archs {
		if p.Arch == arch {
			return true
		}
	}

	return false
}

// DefaultBinaryPath returns the launcher path used when none is configured:
// the platform binary name next to the running executable.
func (p Platform) DefaultBinaryPath(executable string) string {
	return filepath.Join(filepath.Dir(executable), p.BinaryName())
}
