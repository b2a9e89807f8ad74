package hasher

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher selects the relative paths an update covers. Patterns use
// doublestar syntax and are case-sensitive. A pattern matches a path when it
// matches the path itself or any leading directory of it, so "config"
// covers "config/user.json". Exclusions win over inclusions and an empty
// include list accepts everything.
//
// A nil *Matcher accepts every path.
type Matcher struct {
	include []string
	exclude []string
}

// NewMatcher validates and compiles include and exclude patterns.
func NewMatcher(include, exclude []string) (*Matcher, error) {
	for _, p := range include {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid include pattern %q", p)
		}
	}
	for _, p := range exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
	}
	return &Matcher{
		include: slices.Clone(include),
		exclude: slices.Clone(exclude),
	}, nil
}

// Include returns a copy of the include patterns.
func (m *Matcher) Include() []string {
	if m == nil {
		return nil
	}
	return slices.Clone(m.include)
}

// Exclude returns a copy of the exclude patterns.
func (m *Matcher) Exclude() []string {
	if m == nil {
		return nil
	}
	return slices.Clone(m.exclude)
}

// Matches reports whether path is covered.
func (m *Matcher) Matches(path string) bool {
	if m == nil {
		return true
	}

	candidates := prefixes(path)
	if anyMatch(m.exclude, candidates) {
		return false
	}
	if len(m.include) == 0 {
		return true
	}
	return anyMatch(m.include, candidates)
}

func anyMatch(patterns, candidates []string) bool {
	for _, p := range patterns {
		for _, c := range candidates {
			if doublestar.MatchUnvalidated(p, c) {
				return true
			}
		}
	}
	return false
}

// prefixes returns "a", "a/b", "a/b/c" for "a/b/c".
func prefixes(path string) []string {
	out := make([]string, 0, strings.Count(path, "/")+1)
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			out = append(out, path[:i])
		}
	}
	return append(out, path)
}
