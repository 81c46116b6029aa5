package diff

import (
	"sort"

	"github.com/odvcencio/grove/pkg/object"
)

// pairRenames moves exact matches between the removed and added lists into
// Renamed. Two changes match when their blob hash and mode agree. When
// several paths share the same content, candidates on each side pair up in
// path order, which keeps the result deterministic.
//
// Must run after sortChangeSet so the per-key candidate lists inherit path
// order from Added and Removed.
func pairRenames(cs *ChangeSet) {
	if len(cs.Added) == 0 || len(cs.Removed) == 0 {
		return
	}

	addedByKey := make(map[string][]int)
	removedByKey := make(map[string][]int)
	for i, c := range cs.Added {
		key := renameMatchKey(c.NewHash, c.NewMode)
		addedByKey[key] = append(addedByKey[key], i)
	}
	for i, c := range cs.Removed {
		key := renameMatchKey(c.OldHash, c.OldMode)
		removedByKey[key] = append(removedByKey[key], i)
	}

	keys := make([]string, 0, len(addedByKey))
	for key := range addedByKey {
		if len(removedByKey[key]) > 0 {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return
	}
	sort.Strings(keys)

	pairedAdded := make(map[int]bool)
	pairedRemoved := make(map[int]bool)
	for _, key := range keys {
		addedIdx := addedByKey[key]
		removedIdx := removedByKey[key]

		n := len(addedIdx)
		if len(removedIdx) < n {
			n = len(removedIdx)
		}

		for i := 0; i < n; i++ {
			added := cs.Added[addedIdx[i]]
			removed := cs.Removed[removedIdx[i]]
			cs.Renamed = append(cs.Renamed, Rename{
				OldPath: removed.Path,
				NewPath: added.Path,
				Hash:    added.NewHash,
				Mode:    added.NewMode,
			})
			pairedAdded[addedIdx[i]] = true
			pairedRemoved[removedIdx[i]] = true
		}
	}

	cs.Added = dropPaired(cs.Added, pairedAdded)
	cs.Removed = dropPaired(cs.Removed, pairedRemoved)
	sort.Slice(cs.Renamed, func(i, j int) bool {
		if cs.Renamed[i].OldPath != cs.Renamed[j].OldPath {
			return cs.Renamed[i].OldPath < cs.Renamed[j].OldPath
		}
		return cs.Renamed[i].NewPath < cs.Renamed[j].NewPath
	})
}

func renameMatchKey(h object.Hash, mode string) string {
	return string(h) + "|" + mode
}

func dropPaired(changes []Change, paired map[int]bool) []Change {
	kept := changes[:0]
	for i, c := range changes {
		if !paired[i] {
			kept = append(kept, c)
		}
	}
	return kept
}
