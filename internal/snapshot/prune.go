package snapshot

import (
	"fmt"
)

// DefaultKeepCount is the default number of snapshots to retain per directory.
const DefaultKeepCount = 30

// PruneResult contains information about what was pruned.
type PruneResult struct {
	Deleted []Info `json:"deleted" yaml:"deleted"`
	Kept    int    `json:"kept" yaml:"kept"`
}

// Prune removes old snapshots, keeping the most recent keep per directory.
// An empty dir prunes every directory.
func (s *Store) Prune(dir string, keep int) (*PruneResult, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep count must be non-negative")
	}

	infos, err := s.List(dir)
	if err != nil {
		return nil, err
	}

	result := &PruneResult{}
	seen := make(map[string]int)

	// List is newest first, so the first keep per directory survive
	for _, info := range infos {
		seen[info.Dir]++
		if seen[info.Dir] <= keep {
			result.Kept++
			continue
		}
		if err := s.Delete(info.Dir, info.ID); err != nil {
			return nil, fmt.Errorf("failed to delete snapshot %s: %w", info.ID, err)
		}
		result.Deleted = append(result.Deleted, info)
	}

	return result, nil
}
