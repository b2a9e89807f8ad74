// Package wire implements the typed read/write primitives of the launcher
// protocol over an ordered byte stream.
package wire

import "fmt"

type limitMode int

const (
	modeUnbounded limitMode = iota
	modeBounded
	modeFixed
)

// Limit describes how a length-prefixed field is framed and bounded.
//
// The zero value is Unbounded.
type Limit struct {
	mode limitMode
	n    int
}

// Unbounded trusts the length declared on the wire. Use it only for payloads
// that are authenticated downstream.
var Unbounded = Limit{}

// Bounded returns a limit whose declared length may not exceed n. n must be positive.
func Bounded(n int) Limit {
	if n <= 0 {
		panic(fmt.Sprintf("wire: bounded limit must be positive, got %d", n))
	}
	return Limit{mode: modeBounded, n: n}
}

// Fixed returns a limit for a field of exactly n bytes with no length prefix.
// n must be positive.
func Fixed(n int) Limit {
	if n <= 0 {
		panic(fmt.Sprintf("wire: fixed limit must be positive, got %d", n))
	}
	return Limit{mode: modeFixed, n: n}
}

// IsFixed reports whether the field carries no length prefix.
func (l Limit) IsFixed() bool { return l.mode == modeFixed }

// IsUnbounded reports whether the declared length is trusted as-is.
func (l Limit) IsUnbounded() bool { return l.mode == modeUnbounded }

// N returns the cap for Bounded limits and the exact size for Fixed ones.
func (l Limit) N() int { return l.n }

func (l Limit) String() string {
	switch l.mode {
	case modeBounded:
		return fmt.Sprintf("bounded(%d)", l.n)
	case modeFixed:
		return fmt.Sprintf("fixed(%d)", l.n)
	default:
		return "unbounded"
	}
}
