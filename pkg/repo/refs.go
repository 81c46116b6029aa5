package repo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/odvcencio/grove/pkg/object"
)

var ErrRefCASMismatch = errors.New("ref compare-and-swap mismatch")
var ErrRefUpdatedButReflogAppendFailed = errors.New("ref updated but reflog append failed")

// RefUpdateReflogError indicates the ref file update succeeded, but
// appending the corresponding reflog entry failed.
type RefUpdateReflogError struct {
	Ref     string
	OldHash object.Hash
	NewHash object.Hash
	Err     error
}

func (e *RefUpdateReflogError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf(
		"update ref %q: %s (old=%s new=%s): %v",
		e.Ref,
		ErrRefUpdatedButReflogAppendFailed,
		e.OldHash,
		e.NewHash,
		e.Err,
	)
}

func (e *RefUpdateReflogError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *RefUpdateReflogError) Is(target error) bool {
	return target == ErrRefUpdatedButReflogAppendFailed
}

const (
	refLockRetryDelay = 5 * time.Millisecond
	refLockWaitLimit  = 2 * time.Second
)

// ResolveRef resolves a ref name to an object hash.
//
// Resolution order:
//  1. If name is "HEAD", read HEAD. If HEAD is symbolic, resolve the target ref.
//  2. If name starts with "refs/", read .grove/<name>.
//  3. Otherwise, try "refs/heads/<name>", then "refs/tags/<name>".
func (r *Repo) ResolveRef(name string) (object.Hash, error) {
	if name == "HEAD" {
		head, err := r.Head()
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(head, "refs/") {
			return r.ResolveRef(head)
		}
		// Detached HEAD: the value is a hash.
		return object.Hash(head), nil
	}

	if strings.HasPrefix(name, "refs/") {
		return readNamedRef(filepath.Join(r.GroveDir, filepath.FromSlash(name)), name)
	}

	h, err := readNamedRef(filepath.Join(r.GroveDir, "refs", "heads", name), name)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	return readNamedRef(filepath.Join(r.GroveDir, "refs", "tags", name), name)
}

func readNamedRef(refPath, name string) (object.Hash, error) {
	data, err := os.ReadFile(refPath)
	if err != nil {
		return "", fmt.Errorf("resolve ref %q: %w", name, err)
	}
	return object.Hash(strings.TrimRight(string(data), "\n")), nil
}

// UpdateRef writes a hash to the named ref file under .grove/. Parent
// directories are created as needed.
func (r *Repo) UpdateRef(name string, h object.Hash) error {
	return r.UpdateRefCAS(name, h)
}

// UpdateRefCAS writes a hash to the named ref file under .grove/ using
// lockfile + rename atomic semantics. If expectedOld is provided, the
// update only succeeds when the current ref hash matches it.
//
// Reflog append happens after the ref rename; if it fails, the ref update
// remains committed and a RefUpdateReflogError is returned.
func (r *Repo) UpdateRefCAS(name string, h object.Hash, expectedOld ...object.Hash) error {
	if len(expectedOld) > 1 {
		return fmt.Errorf("update ref %q: expected at most one old hash", name)
	}
	hasExpectedOld := len(expectedOld) == 1
	wantOldHash := object.Hash("")
	if hasExpectedOld {
		wantOldHash = expectedOld[0]
	}

	refPath := filepath.Join(r.GroveDir, filepath.FromSlash(name))

	dir := filepath.Dir(refPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("update ref %q: mkdir: %w", name, err)
	}

	lockPath := refPath + ".lock"
	lockFile, err := acquireRefLock(lockPath)
	if err != nil {
		return fmt.Errorf("update ref %q: lock: %w", name, err)
	}
	cleanupLock := true
	defer func() {
		if lockFile != nil {
			_ = lockFile.Close()
		}
		if cleanupLock {
			_ = os.Remove(lockPath)
		}
	}()

	oldHash, err := readRefHash(refPath)
	if err != nil {
		return fmt.Errorf("update ref %q: read old hash: %w", name, err)
	}
	if hasExpectedOld && oldHash != wantOldHash {
		return fmt.Errorf(
			"update ref %q: %w (expected %s, found %s)",
			name,
			ErrRefCASMismatch,
			wantOldHash,
			oldHash,
		)
	}

	if _, err := lockFile.WriteString(string(h) + "\n"); err != nil {
		return fmt.Errorf("update ref %q: write: %w", name, err)
	}
	if err := lockFile.Sync(); err != nil {
		return fmt.Errorf("update ref %q: sync: %w", name, err)
	}
	if err := lockFile.Close(); err != nil {
		lockFile = nil
		return fmt.Errorf("update ref %q: close: %w", name, err)
	}
	lockFile = nil

	if err := os.Rename(lockPath, refPath); err != nil {
		return fmt.Errorf("update ref %q: rename: %w", name, err)
	}
	cleanupLock = false

	if err := r.appendReflog(name, oldHash, h, "update"); err != nil {
		return &RefUpdateReflogError{
			Ref:     name,
			OldHash: oldHash,
			NewHash: h,
			Err:     err,
		}
	}

	return nil
}

func acquireRefLock(lockPath string) (*os.File, error) {
	deadline := time.Now().Add(refLockWaitLimit)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if os.IsExist(err) {
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("timeout waiting for lock %q", lockPath)
			}
			time.Sleep(refLockRetryDelay)
			continue
		}
		return nil, err
	}
}

func readRefHash(refPath string) (object.Hash, error) {
	data, err := os.ReadFile(refPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return object.Hash(strings.TrimSpace(string(data))), nil
}

// ListRefs lists references under .grove/refs. Names are returned
// relative to the refs root, e.g. "heads/main", "tags/v1".
func (r *Repo) ListRefs(prefix string) (map[string]object.Hash, error) {
	root := filepath.Join(r.GroveDir, "refs")
	dir := root
	if strings.TrimSpace(prefix) != "" {
		dir = filepath.Join(root, filepath.FromSlash(prefix))
	}

	refs := make(map[string]object.Hash)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".lock") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		refs[name] = object.Hash(strings.TrimSpace(string(data)))
		return nil
	})
	if os.IsNotExist(err) {
		return refs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return refs, nil
}
