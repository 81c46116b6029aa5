package repo

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/odvcencio/grove/pkg/object"
)

func writeTestTree(t *testing.T, r *Repo, content string) object.Hash {
	t.Helper()
	blobHash, err := r.Store.WriteBlob(&object.Blob{Data: []byte(content)})
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	treeHash, err := r.Store.WriteTree(&object.TreeObj{Entries: []object.TreeEntry{
		{Mode: object.TreeModeFile, Type: object.TypeBlob, Hash: blobHash, Name: "file.txt"},
	}})
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	return treeHash
}

func TestCreateCommit_RoundTrip(t *testing.T) {
	r := initTestRepo(t)
	r.Config.User.Name = "Test"
	r.Config.User.Email = "test@example.com"

	tree := writeTestTree(t, r, "hello\n")
	when := time.Unix(1700000000, 0)

	h, err := r.CreateCommit(tree, nil, "first", when, nil)
	if err != nil {
		t.Fatalf("CreateCommit: %v", err)
	}

	c, err := r.Store.ReadCommit(h)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if c.TreeHash != tree {
		t.Errorf("TreeHash = %s, want %s", c.TreeHash, tree)
	}
	if len(c.Parents) != 0 {
		t.Errorf("Parents = %v, want none", c.Parents)
	}
	if c.Author != "Test <test@example.com>" {
		t.Errorf("Author = %q, want %q", c.Author, "Test <test@example.com>")
	}
	if c.Timestamp != when.Unix() {
		t.Errorf("Timestamp = %d, want %d", c.Timestamp, when.Unix())
	}
	if c.Message != "first" {
		t.Errorf("Message = %q, want %q", c.Message, "first")
	}
}

func TestCreateCommit_RequiresMessage(t *testing.T) {
	r := initTestRepo(t)
	tree := writeTestTree(t, r, "hello\n")

	if _, err := r.CreateCommit(tree, nil, "  \n", time.Time{}, nil); err == nil {
		t.Fatal("CreateCommit with blank message should fail, got nil error")
	}
}

func TestCreateCommit_MissingTree(t *testing.T) {
	r := initTestRepo(t)

	bogus := object.Hash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	_, err := r.CreateCommit(bogus, nil, "msg", time.Time{}, nil)
	if !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("CreateCommit with missing tree = %v, want ErrNotFound", err)
	}
}

func TestCreateCommit_MissingParent(t *testing.T) {
	r := initTestRepo(t)
	tree := writeTestTree(t, r, "hello\n")

	bogus := object.Hash("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	_, err := r.CreateCommit(tree, []object.Hash{bogus}, "msg", time.Time{}, nil)
	if !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("CreateCommit with missing parent = %v, want ErrNotFound", err)
	}
}

func TestCreateCommit_Signer(t *testing.T) {
	r := initTestRepo(t)
	tree := writeTestTree(t, r, "hello\n")

	var signed []byte
	h, err := r.CreateCommit(tree, nil, "signed", time.Unix(1700000000, 0), func(payload []byte) (string, error) {
		signed = payload
		return "test-signature", nil
	})
	if err != nil {
		t.Fatalf("CreateCommit: %v", err)
	}
	if len(signed) == 0 {
		t.Fatal("signer was not handed a payload")
	}

	c, err := r.Store.ReadCommit(h)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if c.Signature != "test-signature" {
		t.Errorf("Signature = %q, want %q", c.Signature, "test-signature")
	}
}

func TestCreateCommit_SignerError(t *testing.T) {
	r := initTestRepo(t)
	tree := writeTestTree(t, r, "hello\n")

	wantErr := errors.New("no key")
	_, err := r.CreateCommit(tree, nil, "signed", time.Time{}, func([]byte) (string, error) {
		return "", wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("CreateCommit signer error = %v, want %v", err, wantErr)
	}
}

func TestLog_FirstParentChain(t *testing.T) {
	r := initTestRepo(t)

	var hashes []object.Hash
	var parents []object.Hash
	for i := 0; i < 3; i++ {
		tree := writeTestTree(t, r, fmt.Sprintf("rev %d\n", i))
		h, err := r.CreateCommit(tree, parents, fmt.Sprintf("commit %d", i), time.Unix(1700000000+int64(i), 0), nil)
		if err != nil {
			t.Fatalf("CreateCommit(%d): %v", i, err)
		}
		hashes = append(hashes, h)
		parents = []object.Hash{h}
	}

	entries, err := r.Log(hashes[2], 0)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Log entries = %d, want 3", len(entries))
	}
	for i, e := range entries {
		wantHash := hashes[2-i]
		if e.Hash != wantHash {
			t.Errorf("entries[%d].Hash = %s, want %s", i, e.Hash, wantHash)
		}
		wantMsg := fmt.Sprintf("commit %d", 2-i)
		if e.Commit.Message != wantMsg {
			t.Errorf("entries[%d].Message = %q, want %q", i, e.Commit.Message, wantMsg)
		}
	}

	limited, err := r.Log(hashes[2], 2)
	if err != nil {
		t.Fatalf("Log(limit=2): %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("Log(limit=2) entries = %d, want 2", len(limited))
	}
}

func TestLog_MissingStart(t *testing.T) {
	r := initTestRepo(t)

	bogus := object.Hash("cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc")
	entries, err := r.Log(bogus, 0)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("Log entries = %d, want 0", len(entries))
	}
}
