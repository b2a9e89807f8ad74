// Package types provides type-safe constants for the launchkit protocol and
// configuration.
//
// This package centralizes the enumerated types used throughout the codebase,
// replacing magic strings and wire codes with typed constants that provide
// compile-time safety and validation methods.
//
// SYNC REQUIREMENT: The wire codes must stay in sync with:
//   - internal/request (handshake type codes)
//   - internal/hasher (entry kind codes in the HashedDir encoding)
package types

import (
	"fmt"
	"strings"
)

// RequestType identifies a request variant in the handshake.
type RequestType string

const (
	// RequestTypeUpdate fetches the signed HashedDir of a named directory.
	RequestTypeUpdate RequestType = "update"
	// RequestTypeLauncher checks and fetches the client binary and profiles.
	RequestTypeLauncher RequestType = "launcher"
)

// AllRequestTypes returns all valid request types.
func AllRequestTypes() []RequestType {
	return []RequestType{RequestTypeUpdate, RequestTypeLauncher}
}

// Validate checks if the RequestType is a valid value.
func (r RequestType) Validate() error {
	switch r {
	case RequestTypeUpdate, RequestTypeLauncher:
		return nil
	case "":
		return fmt.Errorf("request type is required")
	default:
		return fmt.Errorf("invalid request type '%s' (must be update or launcher)", r)
	}
}

// String returns the string representation of the RequestType.
func (r RequestType) String() string {
	return string(r)
}

// Code returns the handshake code, or 0 for an invalid type.
func (r RequestType) Code() int32 {
	switch r {
	case RequestTypeUpdate:
		return 1
	case RequestTypeLauncher:
		return 2
	default:
		return 0
	}
}

// RequestTypeFromCode maps a handshake code back to its RequestType.
func RequestTypeFromCode(code int32) (RequestType, error) {
	for _, r := range AllRequestTypes() {
		if r.Code() == code {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown request type code %d", code)
}

// ParseRequestType parses a string into a RequestType.
// Returns an error if the string is not a valid request type.
func ParseRequestType(s string) (RequestType, error) {
	rt := RequestType(strings.ToLower(s))
	if err := rt.Validate(); err != nil {
		return "", err
	}
	return rt, nil
}

// EntryKind distinguishes directories from files in a HashedDir.
type EntryKind string

const (
	// EntryKindDir indicates a nested directory.
	EntryKindDir EntryKind = "dir"
	// EntryKindFile indicates a file record.
	EntryKindFile EntryKind = "file"
)

// Validate checks if the EntryKind is a valid value.
func (k EntryKind) Validate() error {
	switch k {
	case EntryKindDir, EntryKindFile:
		return nil
	case "":
		return fmt.Errorf("entry kind is required")
	default:
		return fmt.Errorf("invalid entry kind '%s' (must be dir or file)", k)
	}
}

// String returns the string representation of the EntryKind.
func (k EntryKind) String() string {
	return string(k)
}

// Code returns the wire code of the kind, or 0 for an invalid kind.
func (k EntryKind) Code() int32 {
	switch k {
	case EntryKindDir:
		return 1
	case EntryKindFile:
		return 2
	default:
		return 0
	}
}

// EntryKindFromCode maps a wire code back to its EntryKind.
func EntryKindFromCode(code int32) (EntryKind, error) {
	switch code {
	case 1:
		return EntryKindDir, nil
	case 2:
		return EntryKindFile, nil
	default:
		return "", fmt.Errorf("unknown entry kind code %d", code)
	}
}

// Action is what an update plan does to a single path.
type Action string

const (
	// ActionFetch downloads a path that only exists remotely.
	ActionFetch Action = "fetch"
	// ActionReplace re-downloads a path whose content differs.
	ActionReplace Action = "replace"
	// ActionDelete removes a path that only exists locally.
	ActionDelete Action = "delete"
)

// AllActions returns all valid actions.
func AllActions() []Action {
	return []Action{ActionFetch, ActionReplace, ActionDelete}
}

// Validate checks if the Action is a valid value.
func (a Action) Validate() error {
	switch a {
	case ActionFetch, ActionReplace, ActionDelete:
		return nil
	case "":
		return fmt.Errorf("action is required")
	default:
		return fmt.Errorf("invalid action '%s' (must be fetch, replace, or delete)", a)
	}
}

// String returns the string representation of the Action.
func (a Action) String() string {
	return string(a)
}

// IsTransfer returns true if the action downloads content.
func (a Action) IsTransfer() bool {
	return a == ActionFetch || a == ActionReplace
}

// Symbol returns the single-character marker used in text output.
func (a Action) Symbol() string {
	switch a {
	case ActionFetch:
		return "+"
	case ActionReplace:
		return "~"
	case ActionDelete:
		return "-"
	default:
		return "?"
	}
}

// LogFormat selects how log lines are rendered.
type LogFormat string

const (
	// LogFormatConsole renders human-readable lines.
	LogFormatConsole LogFormat = "console"
	// LogFormatJSON renders one JSON object per line.
	LogFormatJSON LogFormat = "json"
)

// Validate checks if the LogFormat is a valid value.
// Empty format is valid and means console.
func (f LogFormat) Validate() error {
	switch f {
	case LogFormatConsole, LogFormatJSON, "":
		return nil
	default:
		return fmt.Errorf("invalid log format '%s' (must be console or json)", f)
	}
}

// String returns the string representation of the LogFormat.
func (f LogFormat) String() string {
	return string(f)
}

// Default returns console if empty, otherwise the current format.
func (f LogFormat) Default() LogFormat {
	if f == "" {
		return LogFormatConsole
	}
	return f
}

// ParseLogFormat parses a string into a LogFormat.
func ParseLogFormat(s string) (LogFormat, error) {
	lf := LogFormat(strings.ToLower(s))
	if err := lf.Validate(); err != nil {
		return "", err
	}
	return lf.Default(), nil
}
