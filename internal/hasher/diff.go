package hasher

import (
	"slices"
)

// Diff lists the paths on which a local and a remote tree disagree. Each slice
// is sorted and the three are disjoint.
type Diff struct {
	LocalOnly  []string `json:"local_only,omitempty" yaml:"local_only,omitempty"`
	RemoteOnly []string `json:"remote_only,omitempty" yaml:"remote_only,omitempty"`
	Changed    []string `json:"changed,omitempty" yaml:"changed,omitempty"`
}

// Empty reports whether the trees agree.
func (d Diff) Empty() bool {
	return len(d.LocalOnly) == 0 && len(d.RemoteOnly) == 0 && len(d.Changed) == 0
}

// Len returns the number of differing paths.
func (d Diff) Len() int {
	return len(d.LocalOnly) + len(d.RemoteOnly) + len(d.Changed)
}

// Diff compares d, the local tree, against remote. Paths rejected by m are
// ignored; a nil matcher accepts every path.
func (d *HashedDir) Diff(remote *HashedDir, m *Matcher) Diff {
	var out Diff
	diffDirs("", d, remote, m, &out)
	slices.Sort(out.LocalOnly)
	slices.Sort(out.RemoteOnly)
	slices.Sort(out.Changed)
	return out
}

// Equal reports whether the two trees agree on every path accepted by m.
func (d *HashedDir) Equal(remote *HashedDir, m *Matcher) bool {
	return d.Diff(remote, m).Empty()
}

func diffDirs(prefix string, local, remote *HashedDir, m *Matcher, out *Diff) {
	for _, name := range unionNames(local, remote) {
		path := join(prefix, name)
		l, inLocal := local.entries[name]
		r, inRemote := remote.entries[name]

		switch {
		case !inRemote:
			out.LocalOnly = append(out.LocalOnly, accepted(path, l, m)...)
		case !inLocal:
			out.RemoteOnly = append(out.RemoteOnly, accepted(path, r, m)...)
		default:
			diffEntries(path, l, r, m, out)
		}
	}
}

func diffEntries(path string, l, r Entry, m *Matcher, out *Diff) {
	switch lv := l.(type) {
	case *HashedDir:
		if rv, ok := r.(*HashedDir); ok {
			diffDirs(path, lv, rv, m, out)
			return
		}
	case *HashedFile:
		if rv, ok := r.(*HashedFile); ok {
			if !lv.Same(rv) && m.Matches(path) {
				out.Changed = append(out.Changed, path)
			}
			return
		}
	}

	// kind mismatch
	if m.Matches(path) {
		out.Changed = append(out.Changed, path)
	}
}

// accepted returns the paths under e that m accepts. An empty directory
// stands for itself.
func accepted(path string, e Entry, m *Matcher) []string {
	dir, ok := e.(*HashedDir)
	if !ok {
		if m.Matches(path) {
			return []string{path}
		}
		return nil
	}

	if dir.Len() == 0 {
		if m.Matches(path) {
			return []string{path}
		}
		return nil
	}

	var out []string
	for _, name := range dir.names {
		out = append(out, accepted(join(path, name), dir.entries[name], m)...)
	}
	return out
}

func unionNames(a, b *HashedDir) []string {
	names := make([]string, 0, len(a.names)+len(b.names))
	names = append(names, a.names...)
	names = append(names, b.names...)
	slices.Sort(names)
	return slices.Compact(names)
}
