// Package config handles Launchfile parsing and location resolution.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adamancini/launchkit/internal/hasher"
	"github.com/adamancini/launchkit/internal/request"
	"github.com/adamancini/launchkit/internal/types"
)

// Server locates the update server.
type Server struct {
	Address string `yaml:"address" toml:"address" json:"address"`                         // host:port
	Timeout string `yaml:"timeout,omitempty" toml:"timeout,omitempty" json:"timeout,omitempty"` // dial timeout, e.g. "10s"
}

// DialTimeout returns the configured timeout or request.DefaultDialTimeout.
// Validate rejects unparsable values.
func (s Server) DialTimeout() time.Duration {
	if d, err := time.ParseDuration(s.Timeout); err == nil && d > 0 {
		return d
	}
	return request.DefaultDialTimeout
}

// Launcher configures self-update.
type Launcher struct {
	Binary string `yaml:"binary,omitempty" toml:"binary,omitempty" json:"binary,omitempty"` // path of the launcher binary to keep current
	Verify bool   `yaml:"verify,omitempty" toml:"verify,omitempty" json:"verify,omitempty"` // run "<binary> --version" after install
}

// Dir is one update directory to request from the server.
type Dir struct {
	Name    string   `yaml:"name" toml:"name" json:"name"`
	Path    string   `yaml:"path,omitempty" toml:"path,omitempty" json:"path,omitempty"` // local directory, defaults to Name
	Include []string `yaml:"include,omitempty" toml:"include,omitempty" json:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty" toml:"exclude,omitempty" json:"exclude,omitempty"`
	Digest  *bool    `yaml:"digest,omitempty" toml:"digest,omitempty" json:"digest,omitempty"` // compare content digests, default true
}

// LocalPath returns the local directory, relative paths resolved against base.
func (d Dir) LocalPath(base string) string {
	p := d.Path
	if p == "" {
		p = d.Name
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// UseDigest reports whether file digests take part in comparisons.
func (d Dir) UseDigest() bool {
	return d.Digest == nil || *d.Digest
}

// Matcher builds the include/exclude matcher for this directory.
func (d Dir) Matcher() (*hasher.Matcher, error) {
	return hasher.NewMatcher(d.Include, d.Exclude)
}

// Log configures logging.
type Log struct {
	Level  string          `yaml:"level,omitempty" toml:"level,omitempty" json:"level,omitempty"`
	Format types.LogFormat `yaml:"format,omitempty" toml:"format,omitempty" json:"format,omitempty"`
}

// Snapshots configures the verified snapshot cache.
type Snapshots struct {
	Path string `yaml:"path,omitempty" toml:"path,omitempty" json:"path,omitempty"`
	Keep *int   `yaml:"keep,omitempty" toml:"keep,omitempty" json:"keep,omitempty"`
}

// Launchfile represents the parsed configuration file.
type Launchfile struct {
	Version     int       `yaml:"version" toml:"version" json:"version"`
	Server      Server    `yaml:"server" toml:"server" json:"server"`
	PublicKey   string    `yaml:"public_key" toml:"public_key" json:"public_key"` // PEM file with the server's RSA public key
	Concurrency int       `yaml:"concurrency,omitempty" toml:"concurrency,omitempty" json:"concurrency,omitempty"`
	Launcher    Launcher  `yaml:"launcher,omitempty" toml:"launcher,omitempty" json:"launcher,omitempty"`
	Dirs        []Dir     `yaml:"dirs" toml:"dirs" json:"dirs"`
	Log         Log       `yaml:"log,omitempty" toml:"log,omitempty" json:"log,omitempty"`
	Snapshots   Snapshots `yaml:"snapshots,omitempty" toml:"snapshots,omitempty" json:"snapshots,omitempty"`

	// path is the file the Launchfile was loaded from.
	path string
}

// Path returns the file the Launchfile was loaded from.
func (c *Launchfile) Path() string { return c.path }

// BaseDir returns the directory relative paths are resolved against.
func (c *Launchfile) BaseDir() string {
	if c.path == "" {
		return "."
	}
	return filepath.Dir(c.path)
}

// Resolve makes a configured path absolute relative to BaseDir.
func (c *Launchfile) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.BaseDir(), p)
}

// GetDir finds a directory by name.
func (c *Launchfile) GetDir(name string) (*Dir, error) {
	for i := range c.Dirs {
		if c.Dirs[i].Name == name {
			return &c.Dirs[i], nil
		}
	}
	return nil, fmt.Errorf("dir not found: %s", name)
}

// KeepCount returns how many snapshots to retain per directory.
func (c *Launchfile) KeepCount(def int) int {
	if c.Snapshots.Keep == nil {
		return def
	}
	return *c.Snapshots.Keep
}

// FindLaunchfile searches for a Launchfile in the standard locations.
// Returns the path to the first Launchfile found, or an error if none exists.
func FindLaunchfile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("specified Launchfile not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	// Check LAUNCHKIT_CONFIG environment variable
	if envPath := os.Getenv("LAUNCHKIT_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}

	// Build search paths in order of precedence
	var searchPaths []string

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}
	searchPaths = append(searchPaths, filepath.Join(xdgConfig, "launchkit"))
	searchPaths = append(searchPaths, filepath.Join(home, ".launchkit"))
	searchPaths = append(searchPaths, home)

	fileNames := []string{
		"Launchfile",
		"Launchfile.yaml",
		"Launchfile.yml",
		"Launchfile.toml",
		"Launchfile.json",
		".Launchfile",
		".Launchfile.yaml",
		".Launchfile.yml",
		".Launchfile.toml",
		".Launchfile.json",
	}

	for _, dir := range searchPaths {
		for _, name := range fileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}

	return "", fmt.Errorf("no Launchfile found in standard locations")
}

// Load reads and parses a Launchfile from the given path.
func Load(path string) (*Launchfile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read Launchfile: %w", err)
	}

	format := detectFormat(path, content)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unable to detect file format for %s", path)
	}

	launchfile, err := parse(content, format)
	if err != nil {
		return nil, err
	}
	launchfile.path = path

	if err := Validate(launchfile); err != nil {
		return nil, err
	}

	return launchfile, nil
}
