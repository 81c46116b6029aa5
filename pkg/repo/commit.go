package repo

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odvcencio/grove/pkg/object"
)

// CommitSigner signs canonical commit payload bytes and returns an encoded
// signature string to be persisted in CommitObj.Signature.
type CommitSigner func(payload []byte) (string, error)

// CreateCommit writes a commit object pointing at an existing tree.
//
// The tree and every parent must already exist in the store. Author and
// committer come from the repository config. A zero when uses the current
// time. When signer is non-nil the commit is signed before it is written.
//
// CreateCommit does not move any ref; see Snapshot for the full flow.
func (r *Repo) CreateCommit(tree object.Hash, parents []object.Hash, message string, when time.Time, signer CommitSigner) (object.Hash, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("create commit: message is required")
	}
	if _, err := r.Store.ReadTree(tree); err != nil {
		return "", fmt.Errorf("create commit: read tree %s: %w", tree, err)
	}
	for _, p := range parents {
		if _, err := r.Store.ReadCommit(p); err != nil {
			return "", fmt.Errorf("create commit: read parent %s: %w", p, err)
		}
	}

	if when.IsZero() {
		when = time.Now()
	}
	identity := r.Config.Identity()

	commitObj := &object.CommitObj{
		TreeHash:  tree,
		Parents:   parents,
		Author:    identity,
		Committer: identity,
		Timestamp: when.Unix(),
		Message:   message,
	}
	if signer != nil {
		payload := object.CommitSigningPayload(commitObj)
		signature, err := signer(payload)
		if err != nil {
			return "", fmt.Errorf("create commit: sign: %w", err)
		}
		commitObj.Signature = signature
	}

	commitHash, err := r.Store.WriteCommit(commitObj)
	if err != nil {
		return "", fmt.Errorf("create commit: write: %w", err)
	}
	return commitHash, nil
}

// LogEntry pairs a commit with its hash.
type LogEntry struct {
	Hash   object.Hash
	Commit *object.CommitObj
}

// Log walks the commit history starting from the given hash, following
// first-parent links, returning commits newest first. A limit <= 0 walks
// the whole chain.
func (r *Repo) Log(start object.Hash, limit int) ([]LogEntry, error) {
	var entries []LogEntry
	current := start

	for current != "" {
		if limit > 0 && len(entries) >= limit {
			break
		}
		c, err := r.Store.ReadCommit(current)
		if err != nil {
			// A missing starting commit ends the walk cleanly.
			if errors.Is(err, object.ErrNotFound) {
				break
			}
			return nil, fmt.Errorf("log: read commit %s: %w", current, err)
		}
		entries = append(entries, LogEntry{Hash: current, Commit: c})

		if len(c.Parents) == 0 {
			break
		}
		current = c.Parents[0]
	}

	return entries, nil
}
