package diff

import (
	"fmt"
	"sort"

	"github.com/odvcencio/grove/pkg/object"
)

// Change records a single path-level difference between two snapshot trees.
// Added changes carry only the new side, removed changes only the old side,
// and modified changes carry both.
type Change struct {
	Path    string
	OldHash object.Hash // empty for added paths
	NewHash object.Hash // empty for removed paths
	OldMode string
	NewMode string
}

// Rename pairs a removed path with an added path whose blob content and
// mode match exactly.
type Rename struct {
	OldPath string
	NewPath string
	Hash    object.Hash
	Mode    string
}

// LoadError records a subtree that could not be read while walking.
// The comparison continues past it; the affected subtree is skipped.
type LoadError struct {
	Path string
	Hash object.Hash
	Err  error
}

// ChangeSet is the result of comparing two snapshot trees. All slices are
// sorted by path.
type ChangeSet struct {
	Added    []Change
	Removed  []Change
	Modified []Change
	Renamed  []Rename
	Errors   []LoadError
}

// Empty reports whether the comparison found no differences and no errors.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Added) == 0 && len(cs.Removed) == 0 && len(cs.Modified) == 0 &&
		len(cs.Renamed) == 0 && len(cs.Errors) == 0
}

// Options controls how trees are compared.
type Options struct {
	DetectRenames bool // pair exact content matches between removed and added paths
	ModeChanges   bool // report entries whose content is unchanged but whose mode differs
}

// DefaultOptions returns the options used by the CLI when no flags override them.
func DefaultOptions() Options {
	return Options{DetectRenames: true, ModeChanges: true}
}

// Trees compares the snapshot trees rooted at oldRoot and newRoot and
// returns the resulting change set. An empty root hash stands for an empty
// tree, so a comparison against "" reports every path on the other side.
//
// Identical subtrees are skipped without being read: equal hashes guarantee
// equal content. A root that cannot be read is a hard error; deeper read
// failures are collected in ChangeSet.Errors and the walk continues.
func Trees(store *object.Store, oldRoot, newRoot object.Hash, opts Options) (*ChangeSet, error) {
	if store == nil {
		return nil, fmt.Errorf("diff: store is required")
	}

	cs := &ChangeSet{}
	if oldRoot == newRoot {
		return cs, nil
	}

	w := &treeWalker{store: store, opts: opts, cs: cs}

	oldEntries, err := loadRoot(store, oldRoot)
	if err != nil {
		return nil, err
	}
	newEntries, err := loadRoot(store, newRoot)
	if err != nil {
		return nil, err
	}

	w.walk("", oldEntries, newEntries)
	sortChangeSet(cs)
	if opts.DetectRenames {
		pairRenames(cs)
	}
	return cs, nil
}

// Commits compares the trees referenced by two commits. An empty commit
// hash stands for an empty tree, which makes the first commit in a history
// diffable against nothing.
func Commits(store *object.Store, oldCommit, newCommit object.Hash, opts Options) (*ChangeSet, error) {
	if store == nil {
		return nil, fmt.Errorf("diff: store is required")
	}

	oldRoot, err := commitTree(store, oldCommit)
	if err != nil {
		return nil, err
	}
	newRoot, err := commitTree(store, newCommit)
	if err != nil {
		return nil, err
	}
	return Trees(store, oldRoot, newRoot, opts)
}

func commitTree(store *object.Store, h object.Hash) (object.Hash, error) {
	if h == "" {
		return "", nil
	}
	c, err := store.ReadCommit(h)
	if err != nil {
		return "", fmt.Errorf("diff: read commit %s: %w", h, err)
	}
	return c.TreeHash, nil
}

func loadRoot(store *object.Store, root object.Hash) ([]object.TreeEntry, error) {
	if root == "" {
		return nil, nil
	}
	tr, err := store.ReadTree(root)
	if err != nil {
		return nil, fmt.Errorf("diff: read root tree %s: %w", root, err)
	}
	return sortedEntries(tr), nil
}

// sortedEntries returns a copy of the tree's entries ordered by name.
// Stored trees are already sorted; sorting again keeps the merge walk
// correct even for trees written by other tools.
func sortedEntries(tr *object.TreeObj) []object.TreeEntry {
	entries := make([]object.TreeEntry, len(tr.Entries))
	copy(entries, tr.Entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

type treeWalker struct {
	store *object.Store
	opts  Options
	cs    *ChangeSet
}

// walk merges two sorted entry lists, descending into subtrees whose
// hashes differ and recording everything else.
func (w *treeWalker) walk(prefix string, oldEntries, newEntries []object.TreeEntry) {
	i, j := 0, 0
	for i < len(oldEntries) || j < len(newEntries) {
		var oldE, newE *object.TreeEntry
		if i < len(oldEntries) {
			oldE = &oldEntries[i]
		}
		if j < len(newEntries) {
			newE = &newEntries[j]
		}

		switch {
		case newE == nil || (oldE != nil && oldE.Name < newE.Name):
			w.removed(joinPath(prefix, oldE.Name), *oldE)
			i++
		case oldE == nil || newE.Name < oldE.Name:
			w.added(joinPath(prefix, newE.Name), *newE)
			j++
		default:
			w.compare(prefix, *oldE, *newE)
			i++
			j++
		}
	}
}

// compare handles a name present on both sides.
func (w *treeWalker) compare(prefix string, oldE, newE object.TreeEntry) {
	path := joinPath(prefix, oldE.Name)

	switch {
	case oldE.IsDir() && newE.IsDir():
		if oldE.Hash == newE.Hash {
			return
		}
		w.walkSubtrees(path, oldE.Hash, newE.Hash)

	case oldE.IsDir() != newE.IsDir():
		// The path changed kind between snapshots. Report it as a
		// removal of the old entry plus an addition of the new one.
		w.removed(path, oldE)
		w.added(path, newE)

	default:
		if oldE.Hash == newE.Hash {
			if w.opts.ModeChanges && entryMode(oldE) != entryMode(newE) {
				w.cs.Modified = append(w.cs.Modified, Change{
					Path:    path,
					OldHash: oldE.Hash,
					NewHash: newE.Hash,
					OldMode: entryMode(oldE),
					NewMode: entryMode(newE),
				})
			}
			return
		}
		w.cs.Modified = append(w.cs.Modified, Change{
			Path:    path,
			OldHash: oldE.Hash,
			NewHash: newE.Hash,
			OldMode: entryMode(oldE),
			NewMode: entryMode(newE),
		})
	}
}

// walkSubtrees reads both sides of a changed directory and recurses.
// If either side fails to load the subtree is skipped entirely; reporting
// only the readable half would misstate what changed.
func (w *treeWalker) walkSubtrees(path string, oldHash, newHash object.Hash) {
	oldTree, oldOK := w.readTree(path, oldHash)
	newTree, newOK := w.readTree(path, newHash)
	if !oldOK || !newOK {
		return
	}
	w.walk(path, sortedEntries(oldTree), sortedEntries(newTree))
}

func (w *treeWalker) removed(path string, e object.TreeEntry) {
	if e.IsDir() {
		w.expand(path, e.Hash, func(leafPath string, leaf object.TreeEntry) {
			w.cs.Removed = append(w.cs.Removed, Change{
				Path:    leafPath,
				OldHash: leaf.Hash,
				OldMode: entryMode(leaf),
			})
		})
		return
	}
	w.cs.Removed = append(w.cs.Removed, Change{
		Path:    path,
		OldHash: e.Hash,
		OldMode: entryMode(e),
	})
}

func (w *treeWalker) added(path string, e object.TreeEntry) {
	if e.IsDir() {
		w.expand(path, e.Hash, func(leafPath string, leaf object.TreeEntry) {
			w.cs.Added = append(w.cs.Added, Change{
				Path:    leafPath,
				NewHash: leaf.Hash,
				NewMode: entryMode(leaf),
			})
		})
		return
	}
	w.cs.Added = append(w.cs.Added, Change{
		Path:    path,
		NewHash: e.Hash,
		NewMode: entryMode(e),
	})
}

// expand walks a subtree that exists on only one side and emits every
// blob leaf under it. Directories themselves produce no change entries.
func (w *treeWalker) expand(path string, treeHash object.Hash, emit func(string, object.TreeEntry)) {
	tr, ok := w.readTree(path, treeHash)
	if !ok {
		return
	}
	for _, e := range sortedEntries(tr) {
		childPath := joinPath(path, e.Name)
		if e.IsDir() {
			w.expand(childPath, e.Hash, emit)
			continue
		}
		emit(childPath, e)
	}
}

// readTree loads a subtree, converting failures into recorded load errors.
func (w *treeWalker) readTree(path string, h object.Hash) (*object.TreeObj, bool) {
	tr, err := w.store.ReadTree(h)
	if err != nil {
		w.cs.Errors = append(w.cs.Errors, LoadError{Path: path, Hash: h, Err: err})
		return nil, false
	}
	return tr, true
}

func entryMode(e object.TreeEntry) string {
	if e.Mode != "" {
		return e.Mode
	}
	if e.IsDir() {
		return object.TreeModeDir
	}
	return object.TreeModeFile
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func sortChangeSet(cs *ChangeSet) {
	byPath := func(changes []Change) func(i, j int) bool {
		return func(i, j int) bool { return changes[i].Path < changes[j].Path }
	}
	sort.Slice(cs.Added, byPath(cs.Added))
	sort.Slice(cs.Removed, byPath(cs.Removed))
	sort.Slice(cs.Modified, byPath(cs.Modified))
	sort.Slice(cs.Renamed, func(i, j int) bool {
		if cs.Renamed[i].OldPath != cs.Renamed[j].OldPath {
			return cs.Renamed[i].OldPath < cs.Renamed[j].OldPath
		}
		return cs.Renamed[i].NewPath < cs.Renamed[j].NewPath
	})
	sort.Slice(cs.Errors, func(i, j int) bool { return cs.Errors[i].Path < cs.Errors[j].Path })
}
