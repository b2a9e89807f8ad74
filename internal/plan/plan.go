// Package plan turns a HashedDir diff into the concrete file operations that
// bring a local directory in line with the server.
package plan

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/adamancini/launchkit/internal/hasher"
	"github.com/adamancini/launchkit/internal/types"
)

// Item is one operation on one relative path.
type Item struct {
	Path   string       `json:"path" yaml:"path"`
	Action types.Action `json:"action" yaml:"action"`
	// Size is the remote size for transfers and the local size for deletions.
	Size int64 `json:"size" yaml:"size"`
	// Dir marks an empty directory rather than a file.
	Dir bool `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// Plan is the ordered list of operations for one update directory. Deletions
// come first so that a path changing kind is cleared before it is fetched.
type Plan struct {
	DirName string `json:"dir" yaml:"dir"`
	Items   []Item `json:"items" yaml:"items"`
}

// Build derives a plan from d, computed as local.Diff(remote, ...).
// Only paths accepted by m are scheduled for transfer; d should have been
// computed with the same matcher.
func Build(dirName string, d hasher.Diff, local, remote *hasher.HashedDir, m *hasher.Matcher) *Plan {
	var deletes, transfers []Item

	for _, path := range d.LocalOnly {
		deletes = append(deletes, deleteItem(path, local))
	}
	for _, path := range d.RemoteOnly {
		transfers = append(transfers, fetchItems(path, remote, m, types.ActionFetch)...)
	}
	for _, path := range d.Changed {
		l, _ := local.Lookup(path)
		r, _ := remote.Lookup(path)
		_, lok := l.(*hasher.HashedFile)
		rf, rok := r.(*hasher.HashedFile)
		if lok && rok {
			transfers = append(transfers, Item{Path: path, Action: types.ActionReplace, Size: rf.Size()})
			continue
		}
		// kind changed: remove whatever is there, then fetch the remote side
		deletes = append(deletes, deleteItem(path, local))
		transfers = append(transfers, fetchItems(path, remote, m, types.ActionReplace)...)
	}

	slices.SortFunc(deletes, byPath)
	slices.SortFunc(transfers, byPath)
	return &Plan{DirName: dirName, Items: slices.Concat(deletes, transfers)}
}

func byPath(a, b Item) int { return strings.Compare(a.Path, b.Path) }

func deleteItem(path string, local *hasher.HashedDir) Item {
	item := Item{Path: path, Action: types.ActionDelete}
	switch e, _ := local.Lookup(path); v := e.(type) {
	case *hasher.HashedFile:
		item.Size = v.Size()
	case *hasher.HashedDir:
		item.Size = v.Size()
		item.Dir = true
	}
	return item
}

// fetchItems expands a remote path into transfers of its accepted files. An
// empty directory becomes a single directory item.
func fetchItems(path string, remote *hasher.HashedDir, m *hasher.Matcher, action types.Action) []Item {
	e, ok := remote.Lookup(path)
	if !ok {
		return nil
	}
	switch v := e.(type) {
	case *hasher.HashedFile:
		if !m.Matches(path) {
			return nil
		}
		return []Item{{Path: path, Action: action, Size: v.Size()}}
	case *hasher.HashedDir:
		files := v.Files()
		if len(files) == 0 {
			if !m.Matches(path) {
				return nil
			}
			return []Item{{Path: path, Action: action, Dir: true}}
		}
		items := make([]Item, 0, len(files))
		for sub, f := range files {
			full := path + "/" + sub
			if !m.Matches(full) {
				continue
			}
			items = append(items, Item{Path: full, Action: action, Size: f.Size()})
		}
		return items
	}
	return nil
}

// Empty reports whether nothing needs to be done.
func (p *Plan) Empty() bool { return len(p.Items) == 0 }

// Summary returns counts per action.
func (p *Plan) Summary() (fetch, replace, remove int) {
	for _, it := range p.Items {
		switch it.Action {
		case types.ActionFetch:
			fetch++
		case types.ActionReplace:
			replace++
		case types.ActionDelete:
			remove++
		}
	}
	return
}

// TotalBytes returns the number of bytes the transfers will download.
func (p *Plan) TotalBytes() int64 {
	var n int64
	for _, it := range p.Items {
		if it.Action.IsTransfer() {
			n += it.Size
		}
	}
	return n
}

// Transfers returns the items that download content.
func (p *Plan) Transfers() []Item {
	return filter(p.Items, func(it Item) bool { return it.Action.IsTransfer() })
}

// Deletions returns the items that remove local content.
func (p *Plan) Deletions() []Item {
	return filter(p.Items, func(it Item) bool { return it.Action == types.ActionDelete })
}

func filter(items []Item, keep func(Item) bool) []Item {
	var out []Item
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// String renders the plan for text output.
func (p *Plan) String() string {
	if p.Empty() {
		return fmt.Sprintf("%s: up to date", p.DirName)
	}

	var b strings.Builder
	fetch, replace, remove := p.Summary()
	fmt.Fprintf(&b, "%s: %d to fetch, %d to replace, %d to delete (%s to download)\n",
		p.DirName, fetch, replace, remove, humanize.IBytes(uint64(p.TotalBytes())))
	for _, it := range p.Items {
		path := it.Path
		if it.Dir {
			path += "/"
		}
		fmt.Fprintf(&b, "  %s %s\n", it.Action.Symbol(), path)
	}
	return strings.TrimRight(b.String(), "\n")
}
