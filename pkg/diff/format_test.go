package diff

import (
	"bytes"
	"strings"
	"testing"

	"github.com/odvcencio/grove/pkg/object"
	"github.com/odvcencio/grove/pkg/textdiff"
)

func TestFormatNameStatus(t *testing.T) {
	cs := &ChangeSet{
		Added:    []Change{{Path: "b.txt"}},
		Removed:  []Change{{Path: "a.txt"}},
		Modified: []Change{{Path: "c.txt"}},
		Renamed:  []Rename{{OldPath: "aa.txt", NewPath: "zz.txt"}},
	}

	got := FormatNameStatus(cs)
	want := "D\ta.txt\n" +
		"R\taa.txt\tzz.txt\n" +
		"A\tb.txt\n" +
		"M\tc.txt\n"
	if got != want {
		t.Fatalf("FormatNameStatus = %q, want %q", got, want)
	}

	if s := FormatNameStatus(&ChangeSet{}); s != "" {
		t.Fatalf("empty change set formatted as %q", s)
	}
}

func TestWriteUnifiedModified(t *testing.T) {
	s, _ := tempDiffStore(t)
	oldBlob := writeBlobStr(t, s, "one\ntwo\nthree\nfour\nfive\n")
	newBlob := writeBlobStr(t, s, "one\ntwo\nTHREE\nfour\nfive\n")

	cs := &ChangeSet{Modified: []Change{{
		Path:    "f.txt",
		OldHash: oldBlob,
		NewHash: newBlob,
		OldMode: object.TreeModeFile,
		NewMode: object.TreeModeFile,
	}}}

	var buf bytes.Buffer
	if err := WriteUnified(&buf, s, cs); err != nil {
		t.Fatalf("WriteUnified failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"diff --grove a/f.txt b/f.txt\n",
		"--- a/f.txt\n",
		"+++ b/f.txt\n",
		"@@ -1,5 +1,5 @@\n",
		"-three\n",
		"+THREE\n",
		" one\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "old mode") {
		t.Fatalf("unchanged mode should not print mode lines:\n%s", out)
	}
}

func TestWriteUnifiedAddedAndRemoved(t *testing.T) {
	s, _ := tempDiffStore(t)
	added := writeBlobStr(t, s, "hello\nworld\n")
	removed := writeBlobStr(t, s, "going\naway\n")

	cs := &ChangeSet{
		Added:   []Change{{Path: "add.txt", NewHash: added, NewMode: object.TreeModeFile}},
		Removed: []Change{{Path: "del.txt", OldHash: removed, OldMode: object.TreeModeFile}},
	}

	var buf bytes.Buffer
	if err := WriteUnified(&buf, s, cs); err != nil {
		t.Fatalf("WriteUnified failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"new file mode 100644\n",
		"@@ -0,0 +1,2 @@\n",
		"+hello\n",
		"+world\n",
		"deleted file mode 100644\n",
		"@@ -1,2 +0,0 @@\n",
		"-going\n",
		"-away\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	// Additions print before removals.
	if strings.Index(out, "add.txt") > strings.Index(out, "del.txt") {
		t.Fatalf("expected additions before removals:\n%s", out)
	}
}

func TestWriteUnifiedModeOnly(t *testing.T) {
	s, _ := tempDiffStore(t)
	blob := writeBlobStr(t, s, "#!/bin/sh\n")

	cs := &ChangeSet{Modified: []Change{{
		Path:    "run.sh",
		OldHash: blob,
		NewHash: blob,
		OldMode: object.TreeModeFile,
		NewMode: object.TreeModeExecutable,
	}}}

	var buf bytes.Buffer
	if err := WriteUnified(&buf, s, cs); err != nil {
		t.Fatalf("WriteUnified failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"diff --grove a/run.sh b/run.sh\n",
		"old mode 100644\n",
		"new mode 100755\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "@@") || strings.Contains(out, "--- a/") {
		t.Fatalf("mode-only change should not print hunks:\n%s", out)
	}
}

func TestWriteUnifiedBinary(t *testing.T) {
	s, _ := tempDiffStore(t)
	oldBlob := writeBlobStr(t, s, "PK\x00\x01old")
	newBlob := writeBlobStr(t, s, "PK\x00\x01new")

	cs := &ChangeSet{Modified: []Change{{
		Path:    "blob.bin",
		OldHash: oldBlob,
		NewHash: newBlob,
		OldMode: object.TreeModeFile,
		NewMode: object.TreeModeFile,
	}}}

	var buf bytes.Buffer
	if err := WriteUnified(&buf, s, cs); err != nil {
		t.Fatalf("WriteUnified failed: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "Binary files a/blob.bin and b/blob.bin differ\n") {
		t.Fatalf("missing binary notice:\n%s", out)
	}
	if strings.Contains(out, "@@") {
		t.Fatalf("binary change should not print hunks:\n%s", out)
	}
}

func TestWriteUnifiedRename(t *testing.T) {
	var buf bytes.Buffer
	cs := &ChangeSet{Renamed: []Rename{{OldPath: "old/name.txt", NewPath: "new/name.txt"}}}

	s, _ := tempDiffStore(t)
	if err := WriteUnified(&buf, s, cs); err != nil {
		t.Fatalf("WriteUnified failed: %v", err)
	}
	out := buf.String()

	want := "diff --grove a/old/name.txt b/new/name.txt\n" +
		"rename from old/name.txt\n" +
		"rename to new/name.txt\n"
	if out != want {
		t.Fatalf("rename output = %q, want %q", out, want)
	}
}

func TestBuildUnifiedHunks(t *testing.T) {
	keep := textdiff.Op{Kind: textdiff.Keep, Line: "k"}
	del := textdiff.Op{Kind: textdiff.Del, Line: "d"}

	// Two edits far apart produce two hunks.
	far := []textdiff.Op{del, keep, keep, keep, keep, keep, keep, keep, del, keep, keep, keep}
	hunks := buildUnifiedHunks(far, 3)
	if len(hunks) != 2 {
		t.Fatalf("hunks = %+v, want two", hunks)
	}
	if hunks[0].start != 0 || hunks[0].end != 4 {
		t.Fatalf("first hunk = %+v", hunks[0])
	}
	if hunks[1].start != 5 || hunks[1].end != 12 {
		t.Fatalf("second hunk = %+v", hunks[1])
	}

	// Edits whose context overlaps merge into one hunk.
	near := []textdiff.Op{del, keep, keep, keep, keep, del, keep, keep, keep, keep}
	hunks = buildUnifiedHunks(near, 3)
	if len(hunks) != 1 {
		t.Fatalf("hunks = %+v, want one merged", hunks)
	}
	if hunks[0].start != 0 || hunks[0].end != 9 {
		t.Fatalf("merged hunk = %+v", hunks[0])
	}

	if hunks = buildUnifiedHunks(nil, 3); len(hunks) != 0 {
		t.Fatalf("empty ops produced hunks: %+v", hunks)
	}
}
