// Package config handles Launchfile parsing and location resolution.
//
// Validation rules:
//   - version: 0 or 1 (validateVersion)
//   - server.address: host:port with a numeric port (validateServer)
//   - server.timeout: Go duration, positive when set (validateServer)
//   - public_key: required (Validate)
//   - dirs: at least one, names are safe entry names and unique, patterns
//     compile (validateDir)
//   - log.level: zerolog level name; log.format: console, json (validateLog)
//   - snapshots.keep: non-negative (Validate)
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/adamancini/launchkit/internal/errs"
	"github.com/adamancini/launchkit/internal/hasher"
)

// CurrentVersion is the newest Launchfile schema version.
const CurrentVersion = 1

// ValidationError represents a Launchfile validation error.
type ValidationError = errs.ValidationError

// Validate checks the Launchfile for required fields and valid values.
func Validate(c *Launchfile) error {
	var errors []string

	if err := validateVersion(c.Version); err != nil {
		errors = append(errors, err.Error())
	}

	if err := validateServer(c.Server); err != nil {
		errors = append(errors, err.Error())
	}

	if c.PublicKey == "" {
		errors = append(errors, ValidationError{Field: "public_key", Message: "public_key is required"}.Error())
	}

	if c.Concurrency < 0 {
		errors = append(errors, ValidationError{Field: "concurrency", Message: "must be non-negative"}.Error())
	}

	if len(c.Dirs) == 0 {
		errors = append(errors, ValidationError{Field: "dirs", Message: "at least one dir is required"}.Error())
	}
	seen := make(map[string]bool, len(c.Dirs))
	for i, d := range c.Dirs {
		if err := validateDir(i, d); err != nil {
			errors = append(errors, err.Error())
			continue
		}
		if seen[d.Name] {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("dirs[%d].name", i),
				Message: fmt.Sprintf("duplicate dir '%s'", d.Name),
			}.Error())
		}
		seen[d.Name] = true
	}

	if err := validateLog(c.Log); err != nil {
		errors = append(errors, err.Error())
	}

	if c.Snapshots.Keep != nil && *c.Snapshots.Keep < 0 {
		errors = append(errors, ValidationError{Field: "snapshots.keep", Message: "must be non-negative"}.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

func validateVersion(v int) error {
	if v < 0 || v > CurrentVersion {
		return ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (max %d)", v, CurrentVersion),
		}
	}
	return nil
}

func validateServer(s Server) error {
	if s.Address == "" {
		return ValidationError{Field: "server.address", Message: "address is required"}
	}

	_, port, err := net.SplitHostPort(s.Address)
	if err != nil {
		return ValidationError{Field: "server.address", Message: err.Error()}
	}
	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		return ValidationError{Field: "server.address", Message: fmt.Sprintf("invalid port '%s'", port)}
	}

	if s.Timeout != "" {
		d, err := time.ParseDuration(s.Timeout)
		if err != nil || d <= 0 {
			return ValidationError{Field: "server.timeout", Message: fmt.Sprintf("invalid duration '%s'", s.Timeout)}
		}
	}

	return nil
}

func validateDir(index int, d Dir) error {
	if err := hasher.ValidateName(d.Name); err != nil {
		return ValidationError{
			Field:   fmt.Sprintf("dirs[%d].name", index),
			Message: fmt.Sprintf("invalid dir name '%s'", d.Name),
		}
	}

	if _, err := d.Matcher(); err != nil {
		return ValidationError{
			Field:   fmt.Sprintf("dirs[%d].include", index),
			Message: err.Error(),
		}
	}

	return nil
}

func validateLog(l Log) error {
	if l.Level != "" {
		if _, err := zerolog.ParseLevel(l.Level); err != nil {
			return ValidationError{Field: "log.level", Message: err.Error()}
		}
	}

	if err := l.Format.Validate(); err != nil {
		return ValidationError{Field: "log.format", Message: err.Error()}
	}

	return nil
}
