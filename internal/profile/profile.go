// Package profile decodes the client profiles a server publishes alongside
// the launcher binary.
package profile

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/adamancini/launchkit/internal/errs"
	"github.com/adamancini/launchkit/internal/hasher"
	"github.com/adamancini/launchkit/internal/wire"
)

// ClientProfile describes one installable client: where its files live on
// the server, which of them the updater owns, and how to start it.
type ClientProfile struct {
	Title         string `yaml:"title" json:"title"`
	Version       string `yaml:"version" json:"version"`
	SortIndex     int    `yaml:"sortIndex" json:"sortIndex"`
	ServerAddress string `yaml:"serverAddress" json:"serverAddress"`
	ServerPort    int    `yaml:"serverPort" json:"serverPort"`

	// Dir is the update directory holding the client files, AssetDir the
	// shared asset directory. Both are single path elements.
	Dir      string `yaml:"dir" json:"dir"`
	AssetDir string `yaml:"assetDir" json:"assetDir"`

	// Update lists patterns synchronized with the server, Verify patterns
	// whose digests are checked on every launch. Exclusions are never touched.
	Update     []string `yaml:"update,omitempty" json:"update,omitempty"`
	Verify     []string `yaml:"verify,omitempty" json:"verify,omitempty"`
	Exclusions []string `yaml:"exclusions,omitempty" json:"exclusions,omitempty"`

	Command string   `yaml:"command" json:"command"`
	Args    []string `yaml:"args,omitempty" json:"args,omitempty"`
}

// Decode reads a profile document from verified bytes. The document is
// YAML, which also accepts JSON. Unknown fields are rejected.
func Decode(r *wire.Reader) (*ClientProfile, error) {
	doc, err := r.ReadByteArray(wire.Unbounded)
	if err != nil {
		return nil, err
	}
	return Parse(doc)
}

// Parse decodes and validates a single profile document.
func Parse(doc []byte) (*ClientProfile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(doc))
	dec.KnownFields(true)

	var p ClientProfile
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Encode writes p in the form Decode reads.
func Encode(w *wire.Writer, p *ClientProfile) error {
	doc, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	return w.WriteByteArray(doc, wire.Unbounded)
}

// Validate checks required fields and that every pattern compiles.
func (p *ClientProfile) Validate() error {
	var problems []string
	add := func(field, msg string) {
		problems = append(problems, errs.ValidationError{Field: field, Message: msg}.Error())
	}

	if strings.TrimSpace(p.Title) == "" {
		add("title", "is required")
	}
	if p.Version == "" {
		add("version", "is required")
	}
	if p.ServerPort < 0 || p.ServerPort > 65535 {
		add("serverPort", fmt.Sprintf("%d is out of range", p.ServerPort))
	}
	if err := hasher.ValidateName(p.Dir); err != nil {
		add("dir", err.Error())
	}
	if p.AssetDir != "" {
		if err := hasher.ValidateName(p.AssetDir); err != nil {
			add("assetDir", err.Error())
		}
	}
	if _, err := p.Matcher(); err != nil {
		add("update", err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// Matcher builds the path matcher for the profile's client directory.
func (p *ClientProfile) Matcher() (*hasher.Matcher, error) {
	include := slices.Concat(p.Update, p.Verify)
	return hasher.NewMatcher(include, p.Exclusions)
}

// Address returns host:port, or "" when the profile names no server.
func (p *ClientProfile) Address() string {
	if p.ServerAddress == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", p.ServerAddress, p.ServerPort)
}

// SortProfiles orders profiles by SortIndex, then Title.
func SortProfiles(profiles []*ClientProfile) {
	slices.SortStableFunc(profiles, func(a, b *ClientProfile) int {
		if a.SortIndex != b.SortIndex {
			return a.SortIndex - b.SortIndex
		}
		return strings.Compare(a.Title, b.Title)
	})
}
