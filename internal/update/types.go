// Package update installs launcher binaries delivered by the server.
package update

// Platform describes the current system platform
type Platform struct {
	OS   string // Operating system (darwin, linux, windows)
	Arch string // Architecture (amd64, arm64)
}

// Replacer safely replaces the binary with rollback support
type Replacer interface {
	Install(data []byte) error
	Rollback() error
}

// VerifyFunc checks that an installed binary works.
type VerifyFunc func(path string) error
