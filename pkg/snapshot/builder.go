package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/odvcencio/grove/pkg/object"
)

// Builder turns a Source into a stored tree of blob and tree objects.
// The zero value is not usable: Store must be set.
type Builder struct {
	Store *object.Store

	// Workers bounds concurrent file reads. Zero or one builds
	// serially. Parallel and serial builds produce the same root hash.
	Workers int

	// Logger receives debug-level progress. Nil uses slog.Default().
	Logger *slog.Logger
}

// Build walks the source from its root and returns the root tree hash.
// Directories yield tree objects, files yield blobs; an empty source
// yields the empty tree. The walk aborts on the first source or store
// error, and on context cancellation.
func (b *Builder) Build(ctx context.Context, src Source) (object.Hash, error) {
	if b.Store == nil {
		return "", fmt.Errorf("snapshot: builder requires a store")
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tb := &treeBuild{store: b.Store, src: src}
	if b.Workers > 1 {
		tb.sem = make(chan struct{}, b.Workers)
	}

	root, err := tb.buildDir(ctx, "")
	if err != nil {
		return "", err
	}
	logger.Debug("snapshot built",
		"root", root,
		"files", tb.files.Load(),
		"dirs", tb.dirs.Load())
	return root, nil
}

type treeBuild struct {
	store *object.Store
	src   Source
	sem   chan struct{} // nil means serial
	files atomic.Int64
	dirs  atomic.Int64
}

func (tb *treeBuild) buildDir(ctx context.Context, dir string) (object.Hash, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	entries, err := tb.src.List(dir)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", pathOrRoot(dir), err)
	}

	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	seen := make(map[string]struct{}, len(sorted))
	for _, e := range sorted {
		if err := object.ValidateEntryName(e.Name); err != nil {
			return "", fmt.Errorf("list %s: %w", pathOrRoot(dir), err)
		}
		if _, dup := seen[e.Name]; dup {
			return "", fmt.Errorf("list %s: duplicate entry %q", pathOrRoot(dir), e.Name)
		}
		seen[e.Name] = struct{}{}
	}

	// Results land at the entry's sorted position, so completion order
	// cannot change the tree.
	treeEntries := make([]object.TreeEntry, len(sorted))
	if tb.sem == nil {
		for i, e := range sorted {
			te, err := tb.buildEntry(ctx, dir, e)
			if err != nil {
				return "", err
			}
			treeEntries[i] = te
		}
	} else {
		var wg sync.WaitGroup
		var mu sync.Mutex
		var firstErr error
		for i, e := range sorted {
			wg.Add(1)
			go func(i int, e Entry) {
				defer wg.Done()
				te, err := tb.buildEntry(ctx, dir, e)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
				treeEntries[i] = te
			}(i, e)
		}
		wg.Wait()
		if firstErr != nil {
			return "", firstErr
		}
	}

	hash, err := tb.store.WriteTree(&object.TreeObj{Entries: treeEntries})
	if err != nil {
		return "", fmt.Errorf("write tree %s: %w", pathOrRoot(dir), err)
	}
	tb.dirs.Add(1)
	return hash, nil
}

func (tb *treeBuild) buildEntry(ctx context.Context, dir string, e Entry) (object.TreeEntry, error) {
	child := e.Name
	if dir != "" {
		child = dir + "/" + e.Name
	}

	if e.Dir {
		sub, err := tb.buildDir(ctx, child)
		if err != nil {
			return object.TreeEntry{}, err
		}
		return object.TreeEntry{
			Mode: object.TreeModeDir,
			Type: object.TypeTree,
			Hash: sub,
			Name: e.Name,
		}, nil
	}

	// Only leaf work holds a worker slot; directory recursion must not,
	// or nested directories could exhaust the slots and deadlock.
	if tb.sem != nil {
		select {
		case tb.sem <- struct{}{}:
			defer func() { <-tb.sem }()
		case <-ctx.Done():
			return object.TreeEntry{}, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return object.TreeEntry{}, err
	}

	data, err := tb.src.ReadFile(child)
	if err != nil {
		return object.TreeEntry{}, fmt.Errorf("read %s: %w", child, err)
	}
	hash, err := tb.store.WriteBlob(&object.Blob{Data: data})
	if err != nil {
		return object.TreeEntry{}, fmt.Errorf("store %s: %w", child, err)
	}
	tb.files.Add(1)

	mode := e.Mode
	if mode == "" {
		mode = object.TreeModeFile
	}
	return object.TreeEntry{
		Mode: mode,
		Type: object.TypeBlob,
		Hash: hash,
		Name: e.Name,
	}, nil
}

func pathOrRoot(dir string) string {
	if dir == "" {
		return "."
	}
	return dir
}
