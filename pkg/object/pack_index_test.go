package object

import (
	"bytes"
	"strings"
	"testing"
)

func testIndexEntries() []PackIndexEntry {
	return []PackIndexEntry{
		{Hash: Hash(strings.Repeat("be", 32)), Offset: 900, CRC32: 3},
		{Hash: Hash(strings.Repeat("0a", 32)), Offset: 12, CRC32: 1},
		{Hash: Hash(strings.Repeat("ff", 32)), Offset: 400, CRC32: 2},
	}
}

func TestPackIndexRoundTrip(t *testing.T) {
	packChecksum := Hash(strings.Repeat("12", 32))

	var buf bytes.Buffer
	idxChecksum, err := WritePackIndex(&buf, testIndexEntries(), packChecksum)
	if err != nil {
		t.Fatalf("WritePackIndex: %v", err)
	}

	idx, err := ReadPackIndex(buf.Bytes())
	if err != nil {
		t.Fatalf("ReadPackIndex: %v", err)
	}
	if idx.PackChecksum != packChecksum {
		t.Errorf("PackChecksum: got %s, want %s", idx.PackChecksum, packChecksum)
	}
	if idx.IndexChecksum != idxChecksum {
		t.Errorf("IndexChecksum: got %s, want %s", idx.IndexChecksum, idxChecksum)
	}

	// Entries come back sorted by hash.
	got := idx.Entries()
	if len(got) != 3 {
		t.Fatalf("Entries: got %d, want 3", len(got))
	}
	wantFirst := Hash(strings.Repeat("0a", 32))
	if got[0].Hash != wantFirst || got[0].Offset != 12 || got[0].CRC32 != 1 {
		t.Errorf("First entry: %+v", got[0])
	}
	if got[2].Hash != Hash(strings.Repeat("ff", 32)) {
		t.Errorf("Last entry: %+v", got[2])
	}
}

func TestPackIndexFind(t *testing.T) {
	var buf bytes.Buffer
	if _, err := WritePackIndex(&buf, testIndexEntries(), Hash(strings.Repeat("12", 32))); err != nil {
		t.Fatalf("WritePackIndex: %v", err)
	}
	idx, err := ReadPackIndex(buf.Bytes())
	if err != nil {
		t.Fatalf("ReadPackIndex: %v", err)
	}

	entry, ok := idx.Find(Hash(strings.Repeat("be", 32)))
	if !ok {
		t.Fatal("Find missed an indexed hash")
	}
	if entry.Offset != 900 || entry.CRC32 != 3 {
		t.Errorf("Found entry: %+v", entry)
	}

	if _, ok := idx.Find(Hash(strings.Repeat("ab", 32))); ok {
		t.Error("Find returned a hash that was never indexed")
	}
	if _, ok := idx.Find(Hash("short")); ok {
		t.Error("Find accepted an invalid hash")
	}
}

func TestPackIndexLargeOffsets(t *testing.T) {
	entries := []PackIndexEntry{
		{Hash: Hash(strings.Repeat("aa", 32)), Offset: 100, CRC32: 1},
		{Hash: Hash(strings.Repeat("bb", 32)), Offset: uint64(1) << 33, CRC32: 2},
	}
	var buf bytes.Buffer
	if _, err := WritePackIndex(&buf, entries, Hash(strings.Repeat("12", 32))); err != nil {
		t.Fatalf("WritePackIndex: %v", err)
	}
	idx, err := ReadPackIndex(buf.Bytes())
	if err != nil {
		t.Fatalf("ReadPackIndex: %v", err)
	}
	entry, ok := idx.Find(Hash(strings.Repeat("bb", 32)))
	if !ok {
		t.Fatal("Find missed large-offset entry")
	}
	if entry.Offset != uint64(1)<<33 {
		t.Errorf("Offset: got %d, want %d", entry.Offset, uint64(1)<<33)
	}
}

func TestWritePackIndexRejectsBadHash(t *testing.T) {
	entries := []PackIndexEntry{{Hash: Hash("nothex"), Offset: 1}}
	var buf bytes.Buffer
	if _, err := WritePackIndex(&buf, entries, Hash(strings.Repeat("12", 32))); err == nil {
		t.Error("Invalid entry hash should fail")
	}
	if _, err := WritePackIndex(&buf, nil, Hash("short")); err == nil {
		t.Error("Invalid pack checksum should fail")
	}
}

func TestReadPackIndexDetectsTamper(t *testing.T) {
	var buf bytes.Buffer
	if _, err := WritePackIndex(&buf, testIndexEntries(), Hash(strings.Repeat("12", 32))); err != nil {
		t.Fatalf("WritePackIndex: %v", err)
	}
	data := buf.Bytes()
	data[packIndexHeaderSize+10] ^= 0x01
	if _, err := ReadPackIndex(data); err == nil {
		t.Error("Tampered index should fail checksum verification")
	}
}

func TestReadPackIndexRejectsShortInput(t *testing.T) {
	if _, err := ReadPackIndex([]byte{0xff, 't', 'O', 'c'}); err == nil {
		t.Error("Truncated index should fail")
	}
}

func TestPackIndexEmpty(t *testing.T) {
	var buf bytes.Buffer
	if _, err := WritePackIndex(&buf, nil, Hash(strings.Repeat("12", 32))); err != nil {
		t.Fatalf("WritePackIndex: %v", err)
	}
	idx, err := ReadPackIndex(buf.Bytes())
	if err != nil {
		t.Fatalf("ReadPackIndex: %v", err)
	}
	if len(idx.Entries()) != 0 {
		t.Errorf("Empty index has %d entries", len(idx.Entries()))
	}
	if _, ok := idx.Find(Hash(strings.Repeat("aa", 32))); ok {
		t.Error("Find in empty index returned a hit")
	}
}
