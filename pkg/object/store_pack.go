package object

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const packDirName = "pack"

func (s *Store) packDir() string {
	return filepath.Join(s.root, packDirName)
}

// GCResult reports what a garbage-collection pass produced.
type GCResult struct {
	PackPath  string
	IndexPath string
	Packed    int
}

// GC consolidates loose objects into a new pack file with an index.
// Loose files are left in place; PruneLoose removes them once their
// packed copies verify. Objects already present in a pack are skipped,
// so repeated runs only pack what is new.
func (s *Store) GC() (*GCResult, error) {
	loose, err := s.listLooseObjectHashes()
	if err != nil {
		return nil, err
	}
	return s.packObjects(s.filterUnpacked(loose))
}

// GCReachable packs only the loose objects reachable from roots.
// Unreachable loose objects stay loose and are never deleted here.
func (s *Store) GCReachable(roots []Hash) (*GCResult, error) {
	reachable, err := s.ReachableSet(roots)
	if err != nil {
		return nil, err
	}
	loose, err := s.listLooseObjectHashes()
	if err != nil {
		return nil, err
	}
	var candidates []Hash
	for _, h := range loose {
		if _, ok := reachable[h]; ok {
			candidates = append(candidates, h)
		}
	}
	return s.packObjects(s.filterUnpacked(candidates))
}

func (s *Store) filterUnpacked(hashes []Hash) []Hash {
	out := hashes[:0]
	for _, h := range hashes {
		if !s.packsContain(h) {
			out = append(out, h)
		}
	}
	return out
}

func (s *Store) packObjects(hashes []Hash) (*GCResult, error) {
	if len(hashes) == 0 {
		return &GCResult{}, nil
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })

	var packBuf bytes.Buffer
	pw, err := NewPackWriter(&packBuf, uint32(len(hashes)))
	if err != nil {
		return nil, err
	}

	indexEntries := make([]PackIndexEntry, 0, len(hashes))
	for _, h := range hashes {
		objType, data, err := s.Read(h)
		if err != nil {
			return nil, fmt.Errorf("pack object %s: %w", h, err)
		}
		packType, err := packTypeFor(objType)
		if err != nil {
			return nil, fmt.Errorf("pack object %s: %w", h, err)
		}
		envelope := makeObjectEnvelope(objType, data)
		offset := pw.CurrentOffset()
		if err := pw.WriteEntry(packType, envelope); err != nil {
			return nil, fmt.Errorf("pack object %s: %w", h, err)
		}
		indexEntries = append(indexEntries, PackIndexEntry{
			Hash:   h,
			Offset: offset,
			CRC32:  crc32.ChecksumIEEE(envelope),
		})
	}

	checksum, err := pw.Finish()
	if err != nil {
		return nil, err
	}

	var idxBuf bytes.Buffer
	if _, err := WritePackIndex(&idxBuf, indexEntries, checksum); err != nil {
		return nil, err
	}

	dir := s.packDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create pack dir: %w", err)
	}
	packPath := filepath.Join(dir, fmt.Sprintf("pack-%s.pack", checksum))
	idxPath := filepath.Join(dir, fmt.Sprintf("pack-%s.idx", checksum))
	if err := writeFileAtomic(dir, packPath, packBuf.Bytes()); err != nil {
		return nil, err
	}
	if err := writeFileAtomic(dir, idxPath, idxBuf.Bytes()); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.packIdx = nil
	s.mu.Unlock()

	return &GCResult{PackPath: packPath, IndexPath: idxPath, Packed: len(hashes)}, nil
}

func writeFileAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("finalize %s: %w", filepath.Base(path), err)
	}
	return nil
}

// PruneLoose deletes loose object files whose content is readable from
// a pack and rehashes to the expected digest. A bad pack therefore
// never costs the loose copy. Returns the number of files removed.
func (s *Store) PruneLoose() (int, error) {
	loose, err := s.listLooseObjectHashes()
	if err != nil {
		return 0, err
	}
	pruned := 0
	for _, h := range loose {
		objType, data, err := s.readFromPacks(h)
		if err != nil {
			continue
		}
		if s.algo.HashObject(objType, data) != h {
			continue
		}
		if err := os.Remove(s.path(h)); err != nil {
			return pruned, fmt.Errorf("prune object %s: %w", h, err)
		}
		pruned++
	}
	return pruned, nil
}

// ---------------------------------------------------------------------------
// Pack read-through
// ---------------------------------------------------------------------------

type packHandle struct {
	idx      *PackIndex
	packPath string
}

// packHandles lists the store's pack indexes, parsing and caching each.
// Unreadable or corrupt indexes are skipped so healthy packs still
// serve reads; VerifyStorage reports the broken ones.
func (s *Store) packHandles() ([]packHandle, error) {
	idxPaths, err := s.listPackIndexPaths()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.packIdx == nil {
		s.packIdx = make(map[string]*PackIndex)
	}

	handles := make([]packHandle, 0, len(idxPaths))
	for _, idxPath := range idxPaths {
		idx, ok := s.packIdx[idxPath]
		if !ok {
			data, err := os.ReadFile(idxPath)
			if err != nil {
				continue
			}
			idx, err = ReadPackIndex(data)
			if err != nil {
				continue
			}
			s.packIdx[idxPath] = idx
		}
		handles = append(handles, packHandle{
			idx:      idx,
			packPath: strings.TrimSuffix(idxPath, ".idx") + ".pack",
		})
	}
	return handles, nil
}

func (s *Store) packsContain(hash Hash) bool {
	handles, err := s.packHandles()
	if err != nil {
		return false
	}
	for _, ph := range handles {
		if _, ok := ph.idx.Find(hash); ok {
			return true
		}
	}
	return false
}

func (s *Store) readFromPacks(hash Hash) (ObjectType, []byte, error) {
	handles, err := s.packHandles()
	if err != nil {
		return "", nil, err
	}
	for _, ph := range handles {
		entry, ok := ph.idx.Find(hash)
		if !ok {
			continue
		}
		pe, err := readPackEntryAt(ph.packPath, entry.Offset)
		if err != nil {
			return "", nil, fmt.Errorf("object %s in %s: %v: %w", hash, filepath.Base(ph.packPath), err, ErrMalformed)
		}
		objType, data, err := parseObjectEnvelope(pe.Data)
		if err != nil {
			return "", nil, fmt.Errorf("object %s in %s: %w", hash, filepath.Base(ph.packPath), err)
		}
		if expect, _ := objectTypeFor(pe.Type); expect != objType {
			return "", nil, fmt.Errorf("object %s in %s: entry type %s disagrees with envelope type %s: %w",
				hash, filepath.Base(ph.packPath), pe.Type, objType, ErrMalformed)
		}
		return objType, data, nil
	}
	return "", nil, fmt.Errorf("object %s: %w", hash, ErrNotFound)
}

// readPackEntryAt decodes the single entry starting at offset without
// reading the rest of the pack.
func readPackEntryAt(packPath string, offset uint64) (*PackEntry, error) {
	f, err := os.Open(packPath)
	if err != nil {
		return nil, fmt.Errorf("open pack: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek pack entry: %w", err)
	}
	br := bufio.NewReader(f)

	objType, size, err := readPackEntryHeaderFrom(br)
	if err != nil {
		return nil, err
	}
	if _, err := objectTypeFor(objType); err != nil {
		return nil, err
	}

	zr, err := zlib.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("zlib reader: %w", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		_ = zr.Close()
		return nil, fmt.Errorf("decompress: %w", err)
	}
	if err := zr.Close(); err != nil {
		return nil, fmt.Errorf("close zlib stream: %w", err)
	}
	if uint64(len(raw)) != size {
		return nil, fmt.Errorf("size mismatch header=%d decoded=%d", size, len(raw))
	}
	return &PackEntry{Type: objType, Size: size, Offset: offset, Data: raw}, nil
}

func readPackEntryHeaderFrom(br *bufio.Reader) (PackObjectType, uint64, error) {
	b, err := br.ReadByte()
	if err != nil {
		return 0, 0, fmt.Errorf("entry header truncated")
	}
	objType := PackObjectType((b >> 4) & 0x7)
	size := uint64(b & 0x0f)
	shift := uint(4)
	for b&0x80 != 0 {
		b, err = br.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("entry header truncated")
		}
		size |= uint64(b&0x7f) << shift
		shift += 7
	}
	return objType, size, nil
}

// ---------------------------------------------------------------------------
// Physical verification
// ---------------------------------------------------------------------------

// StorageIssue describes a physical defect in one of the store's files,
// found without reference to any DAG root.
type StorageIssue struct {
	Path   string
	Detail string
}

// VerifyStorage sweeps every loose object and pack file: loose records
// must decode and rehash to their filename, packs and indexes must pass
// their checksums and agree with each other entry by entry.
func (s *Store) VerifyStorage() ([]StorageIssue, error) {
	var issues []StorageIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, StorageIssue{Path: path, Detail: fmt.Sprintf(format, args...)})
	}

	loose, err := s.listLooseObjectHashes()
	if err != nil {
		return nil, err
	}
	for _, h := range loose {
		p := s.path(h)
		raw, err := os.ReadFile(p)
		if err != nil {
			add(p, "read: %v", err)
			continue
		}
		objType, data, err := decodeLooseObject(raw)
		if err != nil {
			add(p, "%v", err)
			continue
		}
		if got := s.algo.HashObject(objType, data); got != h {
			add(p, "content hashes to %s", got)
		}
	}

	if err := s.verifyPackStorage(add); err != nil {
		return nil, err
	}

	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Path != issues[j].Path {
			return issues[i].Path < issues[j].Path
		}
		return issues[i].Detail < issues[j].Detail
	})
	return issues, nil
}

func (s *Store) verifyPackStorage(add func(path, format string, args ...any)) error {
	dir := s.packDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read pack dir: %w", err)
	}

	type pair struct{ pack, idx bool }
	bases := make(map[string]*pair)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		var base string
		var isIdx bool
		switch {
		case strings.HasSuffix(name, ".pack"):
			base = strings.TrimSuffix(name, ".pack")
		case strings.HasSuffix(name, ".idx"):
			base = strings.TrimSuffix(name, ".idx")
			isIdx = true
		default:
			continue
		}
		p := bases[base]
		if p == nil {
			p = &pair{}
			bases[base] = p
		}
		if isIdx {
			p.idx = true
		} else {
			p.pack = true
		}
	}

	names := make([]string, 0, len(bases))
	for base := range bases {
		names = append(names, base)
	}
	sort.Strings(names)

	for _, base := range names {
		p := bases[base]
		packPath := filepath.Join(dir, base+".pack")
		idxPath := filepath.Join(dir, base+".idx")

		if p.idx && !p.pack {
			add(idxPath, "index without pack file")
			continue
		}
		if p.pack && !p.idx {
			add(packPath, "pack without index file")
		}

		packData, err := os.ReadFile(packPath)
		if err != nil {
			add(packPath, "read: %v", err)
			continue
		}
		pf, err := ReadPack(packData)
		if err != nil {
			add(packPath, "%v", err)
			continue
		}
		if !p.idx {
			continue
		}

		idxData, err := os.ReadFile(idxPath)
		if err != nil {
			add(idxPath, "read: %v", err)
			continue
		}
		idx, err := ReadPackIndex(idxData)
		if err != nil {
			add(idxPath, "%v", err)
			continue
		}

		if idx.PackChecksum != pf.Checksum {
			add(idxPath, "index names pack %s, file checksum is %s", idx.PackChecksum, pf.Checksum)
			continue
		}
		idxEntries := idx.Entries()
		if len(idxEntries) != len(pf.Entries) {
			add(idxPath, "index has %d entries, pack has %d", len(idxEntries), len(pf.Entries))
			continue
		}

		byOffset := make(map[uint64]PackEntry, len(pf.Entries))
		for _, pe := range pf.Entries {
			byOffset[pe.Offset] = pe
		}
		for _, ie := range idxEntries {
			pe, ok := byOffset[ie.Offset]
			if !ok {
				add(idxPath, "entry %s: no pack entry at offset %d", ie.Hash, ie.Offset)
				continue
			}
			if crc32.ChecksumIEEE(pe.Data) != ie.CRC32 {
				add(packPath, "entry %s: crc mismatch", ie.Hash)
				continue
			}
			objType, data, err := parseObjectEnvelope(pe.Data)
			if err != nil {
				add(packPath, "entry %s: %v", ie.Hash, err)
				continue
			}
			if expect, _ := objectTypeFor(pe.Type); expect != objType {
				add(packPath, "entry %s: entry type %s disagrees with envelope type %s", ie.Hash, pe.Type, objType)
				continue
			}
			if got := s.algo.HashObject(objType, data); got != ie.Hash {
				add(packPath, "entry %s: content hashes to %s", ie.Hash, got)
			}
		}
	}
	return nil
}

// listLooseObjectHashes walks the fanout directories and returns every
// loose object hash, sorted.
func (s *Store) listLooseObjectHashes() ([]Hash, error) {
	dirs, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read object dir: %w", err)
	}
	var hashes []Hash
	for _, d := range dirs {
		if !d.IsDir() || len(d.Name()) != 2 || !isHexString(d.Name()) {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.root, d.Name()))
		if err != nil {
			return nil, fmt.Errorf("read fanout dir %s: %w", d.Name(), err)
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			h := Hash(d.Name() + f.Name())
			if len(h) != 64 || !isHexString(string(h)) {
				continue
			}
			hashes = append(hashes, h)
		}
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	return hashes, nil
}

func (s *Store) listPackIndexPaths() ([]string, error) {
	dir := s.packDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pack dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".idx") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func isHexString(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}
