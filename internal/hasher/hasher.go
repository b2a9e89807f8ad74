// Package hasher models a directory tree as sizes and content digests, and
// compares two such trees to decide what an update has to transfer.
package hasher

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/adamancini/launchkit/internal/types"
)

// DigestSize is the length of a BLAKE3-256 content digest.
const DigestSize = 32

// Entry is either a *HashedDir or a *HashedFile.
type Entry interface {
	Kind() types.EntryKind
	entry()
}

// HashedFile records the size and, optionally, the digest of one file.
type HashedFile struct {
	size   int64
	digest []byte
}

// NewFile builds a file record. A nil digest means the digest was not computed.
func NewFile(size int64, digest []byte) (*HashedFile, error) {
	if size < 0 {
		return nil, fmt.Errorf("negative file size %d", size)
	}
	if digest != nil && len(digest) != DigestSize {
		return nil, fmt.Errorf("digest is %d bytes, want %d", len(digest), DigestSize)
	}
	return &HashedFile{size: size, digest: bytes.Clone(digest)}, nil
}

func (*HashedFile) Kind() types.EntryKind { return types.EntryKindFile }
func (*HashedFile) entry()                {}

// Size returns the file size in bytes.
func (f *HashedFile) Size() int64 { return f.size }

// Digest returns a copy of the content digest, or nil.
func (f *HashedFile) Digest() []byte { return bytes.Clone(f.digest) }

// HasDigest reports whether the digest was computed.
func (f *HashedFile) HasDigest() bool { return f.digest != nil }

// Same reports whether two records describe the same content. Digests are
// only compared when both records carry one.
func (f *HashedFile) Same(other *HashedFile) bool {
	if f.size != other.size {
		return false
	}
	if f.digest != nil && other.digest != nil {
		return bytes.Equal(f.digest, other.digest)
	}
	return true
}

// HashedDir is an immutable mapping of entry names to entries.
type HashedDir struct {
	names   []string
	entries map[string]Entry
}

// NewDir builds a directory from its entries. Every name must pass
// ValidateName and every entry must be non-nil.
func NewDir(entries map[string]Entry) (*HashedDir, error) {
	d := &HashedDir{entries: make(map[string]Entry, len(entries))}
	for name, e := range entries {
		if err := ValidateName(name); err != nil {
			return nil, err
		}
		if e == nil || isNilEntry(e) {
			return nil, fmt.Errorf("entry %q is nil", name)
		}
		d.entries[name] = e
	}
	d.names = slices.Sorted(maps.Keys(d.entries))
	return d, nil
}

// EmptyDir returns a directory with no entries.
func EmptyDir() *HashedDir {
	return &HashedDir{entries: map[string]Entry{}}
}

func isNilEntry(e Entry) bool {
	switch v := e.(type) {
	case *HashedDir:
		return v == nil
	case *HashedFile:
		return v == nil
	}
	return false
}

func (*HashedDir) Kind() types.EntryKind { return types.EntryKindDir }
func (*HashedDir) entry()                {}

// Entries returns the entry names in sorted order.
func (d *HashedDir) Entries() []string { return slices.Clone(d.names) }

// Len returns the number of direct entries.
func (d *HashedDir) Len() int { return len(d.names) }

// Get returns the direct entry called name.
func (d *HashedDir) Get(name string) (Entry, bool) {
	e, ok := d.entries[name]
	return e, ok
}

// Lookup resolves a forward-slash relative path.
func (d *HashedDir) Lookup(path string) (Entry, bool) {
	cur := d
	parts := strings.Split(path, "/")
	for i, part := range parts {
		e, ok := cur.entries[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return e, true
		}
		sub, ok := e.(*HashedDir)
		if !ok {
			return nil, false
		}
		cur = sub
	}
	return nil, false
}

// Size returns the total size of all files in the tree.
func (d *HashedDir) Size() int64 {
	var total int64
	for _, e := range d.entries {
		switch v := e.(type) {
		case *HashedDir:
			total += v.Size()
		case *HashedFile:
			total += v.size
		}
	}
	return total
}

// Files flattens the tree into a map keyed by forward-slash relative path.
func (d *HashedDir) Files() map[string]*HashedFile {
	out := make(map[string]*HashedFile)
	d.collect("", out)
	return out
}

func (d *HashedDir) collect(prefix string, out map[string]*HashedFile) {
	for _, name := range d.names {
		path := join(prefix, name)
		switch v := d.entries[name].(type) {
		case *HashedDir:
			v.collect(path, out)
		case *HashedFile:
			out[path] = v
		}
	}
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
