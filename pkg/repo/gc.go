package repo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/grove/pkg/object"
)

// GCReport summarizes a garbage collection pass.
type GCReport struct {
	Result *object.GCResult
	Pruned int // loose files removed, when pruning was requested
}

// GC packs loose objects reachable from refs and HEAD. When prune is
// true, loose files whose content is readable from a pack are removed
// afterwards.
func (r *Repo) GC(prune bool) (*GCReport, error) {
	refs, err := r.ListRefs("")
	if err != nil {
		return nil, err
	}

	rootSet := make(map[object.Hash]struct{}, len(refs)+1)
	for _, h := range refs {
		h = object.Hash(strings.TrimSpace(string(h)))
		if h == "" {
			continue
		}
		rootSet[h] = struct{}{}
	}
	// A detached HEAD is a root the refs walk would miss.
	if h, err := r.ResolveRef("HEAD"); err == nil && h != "" {
		rootSet[h] = struct{}{}
	}

	roots := make([]object.Hash, 0, len(rootSet))
	for h := range rootSet {
		roots = append(roots, h)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

	result, err := r.Store.GCReachable(roots)
	if err != nil {
		return nil, fmt.Errorf("gc: %w", err)
	}

	report := &GCReport{Result: result}
	if prune {
		n, err := r.Store.PruneLoose()
		if err != nil {
			return nil, fmt.Errorf("gc: prune: %w", err)
		}
		report.Pruned = n
	}
	return report, nil
}
