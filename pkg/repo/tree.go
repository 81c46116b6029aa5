package repo

import (
	"fmt"
	"path"

	"github.com/odvcencio/grove/pkg/object"
)

// TreeFileEntry is one file in a flattened tree listing.
type TreeFileEntry struct {
	Path string
	Hash object.Hash
	Mode string
}

// FlattenTree lists every file under the given tree, depth first, with
// slash-separated paths relative to the tree root.
func (r *Repo) FlattenTree(h object.Hash) ([]TreeFileEntry, error) {
	return r.flattenTreeRec(h, "")
}

func (r *Repo) flattenTreeRec(h object.Hash, prefix string) ([]TreeFileEntry, error) {
	treeObj, err := r.Store.ReadTree(h)
	if err != nil {
		return nil, fmt.Errorf("flatten tree: read %s: %w", h, err)
	}

	var result []TreeFileEntry
	for _, entry := range treeObj.Entries {
		fullPath := entry.Name
		if prefix != "" {
			fullPath = path.Join(prefix, entry.Name)
		}

		if entry.IsDir() {
			sub, err := r.flattenTreeRec(entry.Hash, fullPath)
			if err != nil {
				return nil, err
			}
			result = append(result, sub...)
			continue
		}
		result = append(result, TreeFileEntry{
			Path: fullPath,
			Hash: entry.Hash,
			Mode: entry.Mode,
		})
	}
	return result, nil
}
