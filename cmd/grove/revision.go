package main

import (
	"fmt"
	"strings"

	"github.com/odvcencio/grove/pkg/object"
	"github.com/odvcencio/grove/pkg/repo"
)

// resolveRevision turns a ref name or raw hash into an object hash. Refs
// win over hashes; a bare hash is accepted when the store has it.
func resolveRevision(r *repo.Repo, target string) (object.Hash, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", fmt.Errorf("empty revision")
	}
	if resolved, err := r.ResolveRef(target); err == nil {
		return resolved, nil
	}
	h := object.Hash(target)
	if _, _, err := r.Store.Read(h); err != nil {
		return "", fmt.Errorf("unknown ref or object %q", target)
	}
	return h, nil
}

// treeHashFor maps a revision to the tree it denotes: commits yield
// their root tree, trees yield themselves.
func treeHashFor(r *repo.Repo, h object.Hash) (object.Hash, error) {
	objType, _, err := r.Store.Read(h)
	if err != nil {
		return "", err
	}
	switch objType {
	case object.TypeCommit:
		c, err := r.Store.ReadCommit(h)
		if err != nil {
			return "", err
		}
		return c.TreeHash, nil
	case object.TypeTree:
		return h, nil
	default:
		return "", fmt.Errorf("%s is a %s, not a commit or tree", h, objType)
	}
}

func shortHash(h object.Hash) string {
	s := string(h)
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
