// Package errs defines the error taxonomy shared by the protocol, signature
// and request layers. Callers match categories with errors.Is against the
// sentinel values and extract details with errors.As.
package errs

import (
	"errors"
	"fmt"
)

// Protocol failures.
var (
	ErrMalformed      = errors.New("malformed field")
	ErrTruncated      = errors.New("truncated stream")
	ErrOversizedField = errors.New("oversized field")
	ErrServerRejected = errors.New("server rejected request")
)

// Security failures.
var ErrInvalidSignature = errors.New("invalid signature")

// I/O failures.
var (
	ErrTransportFailure      = errors.New("transport failure")
	ErrDirectoryCreateFailed = errors.New("directory create failed")
)

// Caller input failures.
var ErrInvalidName = errors.New("invalid name")

// ProtocolError is fatal to the exchange it occurred in and is never retried.
type ProtocolError struct {
	Kind    error // ErrMalformed, ErrTruncated, ErrOversizedField or ErrServerRejected
	Message string
	Err     error
}

func (e *ProtocolError) Error() string {
	msg := e.Kind.Error()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() []error {
	return nonNil(e.Kind, e.Err)
}

// SecurityError means data could not be authenticated against the trusted key.
// It must never be downgraded to a warning.
type SecurityError struct {
	Kind    error
	Subject string
	Err     error
}

func (e *SecurityError) Error() string {
	msg := e.Kind.Error()
	if e.Subject != "" {
		msg = fmt.Sprintf("%s for %s", msg, e.Subject)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SecurityError) Unwrap() []error {
	return nonNil(e.Kind, e.Err)
}

// IOError is fatal to the current exchange but may be retried by the caller.
type IOError struct {
	Kind error // ErrTransportFailure or ErrDirectoryCreateFailed
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg += " during " + e.Op
	}
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IOError) Unwrap() []error {
	return nonNil(e.Kind, e.Err)
}

// ValidationError is a caller input error, reported before any network activity.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is reports ValidationError values as ErrInvalidName.
func (e ValidationError) Is(target error) bool {
	return target == ErrInvalidName
}

// Malformed reports a value that violates its field's declared shape.
func Malformed(format string, args ...any) error {
	return &ProtocolError{Kind: ErrMalformed, Message: fmt.Sprintf(format, args...)}
}

// MalformedErr wraps a decode failure.
func MalformedErr(message string, err error) error {
	return &ProtocolError{Kind: ErrMalformed, Message: message, Err: err}
}

// Truncated reports a premature end of stream.
func Truncated(err error) error {
	return &ProtocolError{Kind: ErrTruncated, Err: err}
}

// Oversized reports a length exceeding its limit.
func Oversized(length, limit int) error {
	return &ProtocolError{
		Kind:    ErrOversizedField,
		Message: fmt.Sprintf("length %d exceeds limit %d", length, limit),
	}
}

// ServerRejected carries the message the server sent instead of a result.
func ServerRejected(message string) error {
	return &ProtocolError{Kind: ErrServerRejected, Message: message}
}

// InvalidSignature reports a signature that did not verify.
func InvalidSignature(subject string, err error) error {
	return &SecurityError{Kind: ErrInvalidSignature, Subject: subject, Err: err}
}

// Transport wraps a failure of the underlying channel.
func Transport(op string, err error) error {
	return &IOError{Kind: ErrTransportFailure, Op: op, Err: err}
}

// DirectoryCreate wraps a failure to create a local directory.
func DirectoryCreate(path string, err error) error {
	return &IOError{Kind: ErrDirectoryCreateFailed, Op: "mkdir", Path: path, Err: err}
}

// InvalidName builds a ValidationError for a rejected name.
func InvalidName(field, message string) error {
	return ValidationError{Field: field, Message: message}
}

// ServerMessage extracts the server's message from a ServerRejected error.
func ServerMessage(err error) (string, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) && pe.Kind == ErrServerRejected {
		return pe.Message, true
	}
	return "", false
}

func nonNil(errs ...error) []error {
	out := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
