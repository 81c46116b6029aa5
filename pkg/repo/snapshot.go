package repo

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/odvcencio/grove/pkg/object"
	"github.com/odvcencio/grove/pkg/snapshot"
)

// ErrNoChanges is returned by Snapshot when the working directory hashes
// to the same tree as the current HEAD commit.
var ErrNoChanges = errors.New("no changes since last snapshot")

// SnapshotOptions controls a single Snapshot call.
type SnapshotOptions struct {
	// Message is the commit message. Required.
	Message string

	// AllowEmpty records a snapshot even when nothing changed.
	AllowEmpty bool

	// Workers bounds concurrent file hashing. Zero falls back to the
	// [snapshot] config section, then to GOMAXPROCS.
	Workers int

	// When overrides the commit timestamp. Zero uses the current time.
	When time.Time

	// Signer, when set, signs the commit.
	Signer CommitSigner
}

// SnapshotResult reports what a Snapshot call produced.
type SnapshotResult struct {
	CommitHash object.Hash
	TreeHash   object.Hash
}

// Snapshot hashes the working directory into a tree, writes a commit
// pointing at it, and advances HEAD (or the current branch) to the new
// commit with a compare-and-swap against the previous value.
//
//  1. Build the tree from the working directory (ignore rules apply)
//  2. Resolve HEAD to find the parent commit, if any
//  3. Unless AllowEmpty, stop with ErrNoChanges when the tree matches the parent's
//  4. Create the commit and move the ref
func (r *Repo) Snapshot(ctx context.Context, opts SnapshotOptions) (*SnapshotResult, error) {
	if strings.TrimSpace(opts.Message) == "" {
		return nil, fmt.Errorf("snapshot: message is required")
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = r.Config.Snapshot.Workers
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	builder := &snapshot.Builder{Store: r.Store, Workers: workers, Logger: r.Logger}
	treeHash, err := builder.Build(ctx, snapshot.NewDirSource(r.RootDir))
	if err != nil {
		return nil, fmt.Errorf("snapshot: build tree: %w", err)
	}

	// Parent is wherever HEAD points; empty before the first snapshot.
	var parents []object.Hash
	parentHash, err := r.ResolveRef("HEAD")
	if err == nil && parentHash != "" {
		parents = append(parents, parentHash)
	}

	if !opts.AllowEmpty && parentHash != "" {
		parent, err := r.Store.ReadCommit(parentHash)
		if err != nil {
			return nil, fmt.Errorf("snapshot: read parent %s: %w", parentHash, err)
		}
		if parent.TreeHash == treeHash {
			return nil, ErrNoChanges
		}
	}

	commitHash, err := r.CreateCommit(treeHash, parents, opts.Message, opts.When, opts.Signer)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	head, err := r.Head()
	if err != nil {
		return nil, fmt.Errorf("snapshot: read HEAD: %w", err)
	}
	if strings.HasPrefix(head, "refs/") {
		var updateErr error
		if parentHash == "" {
			updateErr = r.UpdateRefCAS(head, commitHash)
		} else {
			updateErr = r.UpdateRefCAS(head, commitHash, parentHash)
		}
		if updateErr != nil {
			return nil, fmt.Errorf("snapshot: update ref %q: %w", head, updateErr)
		}
	} else {
		// Detached HEAD: CAS HEAD itself against the old hash.
		if err := r.UpdateRefCAS("HEAD", commitHash, object.Hash(strings.TrimSpace(head))); err != nil {
			return nil, fmt.Errorf("snapshot: update detached HEAD: %w", err)
		}
	}

	r.logger().Debug("snapshot recorded",
		"commit", commitHash,
		"tree", treeHash,
		"parents", len(parents))

	return &SnapshotResult{CommitHash: commitHash, TreeHash: treeHash}, nil
}
