package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/odvcencio/grove/pkg/object"
)

func TestSnapshot_FirstAndSecond(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "alpha\n")
	writeWorkFile(t, r, "sub/b.txt", "beta\n")

	first := takeSnapshot(t, r, "first")

	head, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef(HEAD): %v", err)
	}
	if head != first.CommitHash {
		t.Errorf("HEAD = %s, want %s", head, first.CommitHash)
	}

	files, err := r.FlattenTree(first.TreeHash)
	if err != nil {
		t.Fatalf("FlattenTree: %v", err)
	}
	if len(files) != 2 || files[0].Path != "a.txt" || files[1].Path != "sub/b.txt" {
		t.Fatalf("FlattenTree = %+v, want a.txt and sub/b.txt", files)
	}

	writeWorkFile(t, r, "a.txt", "alpha v2\n")
	second := takeSnapshot(t, r, "second")

	c, err := r.Store.ReadCommit(second.CommitHash)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if len(c.Parents) != 1 || c.Parents[0] != first.CommitHash {
		t.Errorf("Parents = %v, want [%s]", c.Parents, first.CommitHash)
	}

	head, err = r.ResolveRef("refs/heads/main")
	if err != nil {
		t.Fatalf("ResolveRef(main): %v", err)
	}
	if head != second.CommitHash {
		t.Errorf("main = %s, want %s", head, second.CommitHash)
	}
}

func TestSnapshot_NoChanges(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "alpha\n")

	first := takeSnapshot(t, r, "first")

	_, err := r.Snapshot(context.Background(), SnapshotOptions{Message: "again"})
	if !errors.Is(err, ErrNoChanges) {
		t.Fatalf("Snapshot with no changes = %v, want ErrNoChanges", err)
	}

	res, err := r.Snapshot(context.Background(), SnapshotOptions{Message: "again", AllowEmpty: true})
	if err != nil {
		t.Fatalf("Snapshot(AllowEmpty): %v", err)
	}
	if res.TreeHash != first.TreeHash {
		t.Errorf("TreeHash = %s, want unchanged %s", res.TreeHash, first.TreeHash)
	}
	c, err := r.Store.ReadCommit(res.CommitHash)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if len(c.Parents) != 1 || c.Parents[0] != first.CommitHash {
		t.Errorf("Parents = %v, want [%s]", c.Parents, first.CommitHash)
	}
}

func TestSnapshot_RequiresMessage(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "alpha\n")

	if _, err := r.Snapshot(context.Background(), SnapshotOptions{}); err == nil {
		t.Fatal("Snapshot without message should fail, got nil error")
	}
}

func TestSnapshot_RespectsIgnoreRules(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, ".groveignore", "*.log\n")
	writeWorkFile(t, r, "keep.txt", "keep\n")
	writeWorkFile(t, r, "noise.log", "drop\n")

	res := takeSnapshot(t, r, "first")

	files, err := r.FlattenTree(res.TreeHash)
	if err != nil {
		t.Fatalf("FlattenTree: %v", err)
	}
	for _, f := range files {
		if f.Path == "noise.log" {
			t.Error("ignored file noise.log was snapshotted")
		}
		if f.Path == ".grove" || strings.HasPrefix(f.Path, ".grove/") {
			t.Errorf("metadata path %q was snapshotted", f.Path)
		}
	}
}

func TestSnapshot_DetachedHead(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "alpha\n")

	first := takeSnapshot(t, r, "first")

	// Detach HEAD at the first commit.
	if err := os.WriteFile(filepath.Join(r.GroveDir, "HEAD"), []byte(string(first.CommitHash)+"\n"), 0o644); err != nil {
		t.Fatalf("write HEAD: %v", err)
	}

	writeWorkFile(t, r, "a.txt", "alpha v2\n")
	second := takeSnapshot(t, r, "second")

	head, err := r.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head != string(second.CommitHash) {
		t.Errorf("detached HEAD = %q, want %q", head, second.CommitHash)
	}

	// The branch did not move.
	main, err := r.ResolveRef("refs/heads/main")
	if err != nil {
		t.Fatalf("ResolveRef(main): %v", err)
	}
	if main != first.CommitHash {
		t.Errorf("main = %s, want untouched %s", main, first.CommitHash)
	}
}

func TestSnapshot_RecordsReflog(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "alpha\n")
	first := takeSnapshot(t, r, "first")

	writeWorkFile(t, r, "a.txt", "alpha v2\n")
	second := takeSnapshot(t, r, "second")

	entries, err := r.ReadReflog("main", 0)
	if err != nil {
		t.Fatalf("ReadReflog: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("reflog entries = %d, want 2", len(entries))
	}
	if entries[0].NewHash != second.CommitHash {
		t.Errorf("entries[0].NewHash = %s, want %s", entries[0].NewHash, second.CommitHash)
	}
	if entries[1].OldHash != object.Hash(zeroHash) || entries[1].NewHash != first.CommitHash {
		t.Errorf("entries[1] = %s -> %s, want %s -> %s",
			entries[1].OldHash, entries[1].NewHash, zeroHash, first.CommitHash)
	}
}

func TestSnapshot_WorkersMatchSerial(t *testing.T) {
	serial := initTestRepo(t)
	parallel := initTestRepo(t)
	for _, r := range []*Repo{serial, parallel} {
		writeWorkFile(t, r, "a.txt", "alpha\n")
		writeWorkFile(t, r, "sub/b.txt", "beta\n")
		writeWorkFile(t, r, "sub/deep/c.txt", "gamma\n")
	}

	res1, err := serial.Snapshot(context.Background(), SnapshotOptions{Message: "m", Workers: 1})
	if err != nil {
		t.Fatalf("Snapshot(serial): %v", err)
	}
	res2, err := parallel.Snapshot(context.Background(), SnapshotOptions{Message: "m", Workers: 4})
	if err != nil {
		t.Fatalf("Snapshot(parallel): %v", err)
	}
	if res1.TreeHash != res2.TreeHash {
		t.Errorf("tree hashes differ: serial %s, parallel %s", res1.TreeHash, res2.TreeHash)
	}
}
