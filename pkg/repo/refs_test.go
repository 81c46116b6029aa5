package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/odvcencio/grove/pkg/object"
)

func TestUpdateRef_ResolveRef_RoundTrip(t *testing.T) {
	r := initTestRepo(t)

	h := object.Hash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	if err := r.UpdateRef("refs/heads/main", h); err != nil {
		t.Fatalf("UpdateRef: %v", err)
	}

	got, err := r.ResolveRef("refs/heads/main")
	if err != nil {
		t.Fatalf("ResolveRef: %v", err)
	}
	if got != h {
		t.Errorf("ResolveRef = %q, want %q", got, h)
	}
}

func TestResolveRef_HEAD_FollowsBranch(t *testing.T) {
	r := initTestRepo(t)

	h := object.Hash("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	if err := r.UpdateRef("refs/heads/main", h); err != nil {
		t.Fatalf("UpdateRef: %v", err)
	}

	got, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef(HEAD): %v", err)
	}
	if got != h {
		t.Errorf("ResolveRef(HEAD) = %q, want %q", got, h)
	}
}

func TestResolveRef_DetachedHEAD(t *testing.T) {
	r := initTestRepo(t)

	h := object.Hash("cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc")
	if err := os.WriteFile(filepath.Join(r.GroveDir, "HEAD"), []byte(string(h)+"\n"), 0o644); err != nil {
		t.Fatalf("write HEAD: %v", err)
	}

	got, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef(HEAD): %v", err)
	}
	if got != h {
		t.Errorf("ResolveRef(HEAD) = %q, want %q", got, h)
	}
}

// A bare name resolves through refs/heads/ before refs/tags/.
func TestResolveRef_ShortName_HeadsBeforeTags(t *testing.T) {
	r := initTestRepo(t)

	branchHash := object.Hash("1111111111111111111111111111111111111111111111111111111111111111")
	tagHash := object.Hash("2222222222222222222222222222222222222222222222222222222222222222")

	if err := r.UpdateRef("refs/heads/v1", branchHash); err != nil {
		t.Fatalf("UpdateRef(heads/v1): %v", err)
	}
	if err := r.UpdateRef("refs/tags/v1", tagHash); err != nil {
		t.Fatalf("UpdateRef(tags/v1): %v", err)
	}

	got, err := r.ResolveRef("v1")
	if err != nil {
		t.Fatalf("ResolveRef(v1): %v", err)
	}
	if got != branchHash {
		t.Errorf("ResolveRef(v1) = %q, want branch hash %q", got, branchHash)
	}
}

func TestResolveRef_ShortName_FallsBackToTags(t *testing.T) {
	r := initTestRepo(t)

	tagHash := object.Hash("3333333333333333333333333333333333333333333333333333333333333333")
	if err := r.UpdateRef("refs/tags/release", tagHash); err != nil {
		t.Fatalf("UpdateRef(tags/release): %v", err)
	}

	got, err := r.ResolveRef("release")
	if err != nil {
		t.Fatalf("ResolveRef(release): %v", err)
	}
	if got != tagHash {
		t.Errorf("ResolveRef(release) = %q, want %q", got, tagHash)
	}
}

func TestResolveRef_Unknown_Error(t *testing.T) {
	r := initTestRepo(t)

	if _, err := r.ResolveRef("no-such-ref"); err == nil {
		t.Fatal("ResolveRef of unknown name should fail, got nil error")
	}
}

func TestUpdateRefCAS_ConcurrentSingleWinner(t *testing.T) {
	r := initTestRepo(t)

	base := object.Hash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	if err := r.UpdateRef("refs/heads/main", base); err != nil {
		t.Fatalf("UpdateRef(base): %v", err)
	}

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)

	successCh := make(chan object.Hash, workers)
	errCh := make(chan error, workers)

	for i := 0; i < workers; i++ {
		i := i
		go func() {
			defer wg.Done()
			next := object.Hash(fmt.Sprintf("%064x", i+1))
			if err := r.UpdateRefCAS("refs/heads/main", next, base); err != nil {
				errCh <- err
				return
			}
			successCh <- next
		}()
	}

	wg.Wait()
	close(successCh)
	close(errCh)

	var winner object.Hash
	successes := 0
	for h := range successCh {
		successes++
		winner = h
	}
	if successes != 1 {
		t.Fatalf("successful CAS updates = %d, want 1", successes)
	}

	casMismatches := 0
	for err := range errCh {
		if errors.Is(err, ErrRefCASMismatch) {
			casMismatches++
			continue
		}
		t.Fatalf("unexpected error type: %v", err)
	}
	if casMismatches != workers-1 {
		t.Fatalf("CAS mismatches = %d, want %d", casMismatches, workers-1)
	}

	got, err := r.ResolveRef("refs/heads/main")
	if err != nil {
		t.Fatalf("ResolveRef(main): %v", err)
	}
	if got != winner {
		t.Fatalf("refs/heads/main = %s, want winner %s", got, winner)
	}
}

func TestUpdateRefCAS_CleansLockOnMismatch(t *testing.T) {
	r := initTestRepo(t)

	current := object.Hash("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	if err := r.UpdateRef("refs/heads/main", current); err != nil {
		t.Fatalf("UpdateRef(current): %v", err)
	}

	err := r.UpdateRefCAS(
		"refs/heads/main",
		object.Hash("cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"),
		object.Hash("dddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddd"),
	)
	if !errors.Is(err, ErrRefCASMismatch) {
		t.Fatalf("expected CAS mismatch, got: %v", err)
	}

	lockPath := filepath.Join(r.GroveDir, "refs", "heads", "main.lock")
	if _, statErr := os.Stat(lockPath); !os.IsNotExist(statErr) {
		t.Fatalf("expected no lingering lockfile at %q, stat err=%v", lockPath, statErr)
	}
}

func TestUpdateRefCAS_CreateOnlyWithEmptyOld(t *testing.T) {
	r := initTestRepo(t)

	h := object.Hash("eeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")
	if err := r.UpdateRefCAS("refs/heads/new", h, ""); err != nil {
		t.Fatalf("UpdateRefCAS(create): %v", err)
	}

	err := r.UpdateRefCAS("refs/heads/new", object.Hash("f000000000000000000000000000000000000000000000000000000000000000"), "")
	if !errors.Is(err, ErrRefCASMismatch) {
		t.Fatalf("second create should CAS-mismatch, got: %v", err)
	}
}

func TestListRefs(t *testing.T) {
	r := initTestRepo(t)

	main := object.Hash("1111111111111111111111111111111111111111111111111111111111111111")
	feature := object.Hash("2222222222222222222222222222222222222222222222222222222222222222")
	tag := object.Hash("3333333333333333333333333333333333333333333333333333333333333333")

	if err := r.UpdateRef("refs/heads/main", main); err != nil {
		t.Fatalf("UpdateRef(main): %v", err)
	}
	if err := r.UpdateRef("refs/heads/feature/x", feature); err != nil {
		t.Fatalf("UpdateRef(feature/x): %v", err)
	}
	if err := r.UpdateRef("refs/tags/v1", tag); err != nil {
		t.Fatalf("UpdateRef(tags/v1): %v", err)
	}

	all, err := r.ListRefs("")
	if err != nil {
		t.Fatalf("ListRefs: %v", err)
	}
	want := map[string]object.Hash{
		"heads/main":      main,
		"heads/feature/x": feature,
		"tags/v1":         tag,
	}
	if len(all) != len(want) {
		t.Fatalf("ListRefs returned %d refs, want %d: %v", len(all), len(want), all)
	}
	for name, h := range want {
		if all[name] != h {
			t.Errorf("ListRefs[%q] = %q, want %q", name, all[name], h)
		}
	}

	heads, err := r.ListRefs("heads")
	if err != nil {
		t.Fatalf("ListRefs(heads): %v", err)
	}
	if len(heads) != 2 {
		t.Fatalf("ListRefs(heads) returned %d refs, want 2: %v", len(heads), heads)
	}
}
