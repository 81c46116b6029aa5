package object

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Store is a content-addressable object store rooted at a directory.
// Objects are written to objects/ab/cdef... fanout paths derived from
// their hash, compressed at rest, and optionally consolidated into
// pack files by GC.
type Store struct {
	root  string
	algo  Algorithm
	codec Codec

	mu      sync.Mutex
	packIdx map[string]*PackIndex
}

// NewStore opens a store at root using the default hash algorithm and
// compression codec.
func NewStore(root string) *Store {
	return NewStoreWith(root, DefaultAlgorithm, DefaultCodec)
}

// NewStoreWith opens a store at root with an explicit algorithm and
// codec. The algorithm must match the one the store was created with:
// hashes from different algorithms never collide with stored paths,
// so a mismatch surfaces as every object being missing.
func NewStoreWith(root string, algo Algorithm, codec Codec) *Store {
	if !algo.Valid() {
		algo = DefaultAlgorithm
	}
	return &Store{root: root, algo: algo, codec: codec}
}

// Algorithm reports the hash algorithm this store addresses objects with.
func (s *Store) Algorithm() Algorithm {
	return s.algo
}

func (s *Store) path(hash Hash) string {
	return filepath.Join(s.root, string(hash[:2]), string(hash[2:]))
}

// Has reports whether the object exists, loose or packed. It never
// reads object content.
func (s *Store) Has(hash Hash) bool {
	if len(hash) < 3 {
		return false
	}
	if _, err := os.Stat(s.path(hash)); err == nil {
		return true
	}
	return s.packsContain(hash)
}

// Write stores an object and returns its hash. Writing the same
// content twice is a no-op: the existing object is left untouched.
func (s *Store) Write(objType ObjectType, data []byte) (Hash, error) {
	hash := s.algo.HashObject(objType, data)
	if s.Has(hash) {
		return hash, nil
	}

	envelope := makeObjectEnvelope(objType, data)
	payload, codec, err := compressPayload(s.codec, envelope)
	if err != nil {
		return "", fmt.Errorf("write object %s: %w", hash, err)
	}

	record := make([]byte, 0, 1+binary.MaxVarintLen64+len(payload))
	record = append(record, byte(codec))
	record = binary.AppendUvarint(record, uint64(len(envelope)))
	record = append(record, payload...)

	p := s.path(hash)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.root, "obj-*")
	if err != nil {
		return "", fmt.Errorf("create temp object: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(record); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write object %s: %w", hash, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close object %s: %w", hash, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("finalize object %s: %w", hash, err)
	}
	return hash, nil
}

// Read returns an object's type and content, checking loose storage
// first and falling back to pack files. A hash present in neither
// returns an error satisfying errors.Is(err, ErrNotFound).
func (s *Store) Read(hash Hash) (ObjectType, []byte, error) {
	objType, data, err := s.readLoose(hash)
	if err == nil {
		return objType, data, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", nil, err
	}
	return s.readFromPacks(hash)
}

func (s *Store) readLoose(hash Hash) (ObjectType, []byte, error) {
	if len(hash) < 3 {
		return "", nil, fmt.Errorf("object %q: %w", string(hash), ErrNotFound)
	}
	raw, err := os.ReadFile(s.path(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, fmt.Errorf("object %s: %w", hash, ErrNotFound)
		}
		return "", nil, fmt.Errorf("read object %s: %w", hash, err)
	}
	objType, data, err := decodeLooseObject(raw)
	if err != nil {
		return "", nil, fmt.Errorf("object %s: %w", hash, err)
	}
	return objType, data, nil
}

// decodeLooseObject unwraps the at-rest record: a codec tag byte, the
// uncompressed envelope length as a uvarint, then the codec payload.
func decodeLooseObject(raw []byte) (ObjectType, []byte, error) {
	if len(raw) < 2 {
		return "", nil, fmt.Errorf("truncated record: %w", ErrMalformed)
	}
	codec := Codec(raw[0])
	if codec > CodecZstd {
		return "", nil, fmt.Errorf("codec tag %d: %w", raw[0], ErrMalformed)
	}
	size, n := binary.Uvarint(raw[1:])
	if n <= 0 {
		return "", nil, fmt.Errorf("bad envelope length: %w", ErrMalformed)
	}
	envelope, err := decompressPayload(codec, raw[1+n:], size)
	if err != nil {
		return "", nil, fmt.Errorf("%v: %w", err, ErrMalformed)
	}
	return parseObjectEnvelope(envelope)
}

// makeObjectEnvelope frames content the same way hashing does, so the
// stored bytes can be rehashed for verification.
func makeObjectEnvelope(objType ObjectType, data []byte) []byte {
	header := fmt.Sprintf("%s %d\x00", objType, len(data))
	envelope := make([]byte, 0, len(header)+len(data))
	envelope = append(envelope, header...)
	envelope = append(envelope, data...)
	return envelope
}

// parseObjectEnvelope splits an envelope into type and content,
// validating the header against the content it frames.
func parseObjectEnvelope(envelope []byte) (ObjectType, []byte, error) {
	idx := bytes.IndexByte(envelope, 0)
	if idx < 0 {
		return "", nil, fmt.Errorf("envelope missing header terminator: %w", ErrMalformed)
	}
	typeStr, lenStr, ok := strings.Cut(string(envelope[:idx]), " ")
	if !ok {
		return "", nil, fmt.Errorf("envelope header %q: %w", string(envelope[:idx]), ErrMalformed)
	}
	objType := ObjectType(typeStr)
	switch objType {
	case TypeBlob, TypeTree, TypeCommit:
	default:
		return "", nil, fmt.Errorf("envelope type %q: %w", typeStr, ErrMalformed)
	}
	size, err := strconv.ParseInt(lenStr, 10, 64)
	if err != nil {
		return "", nil, fmt.Errorf("envelope length %q: %w", lenStr, ErrMalformed)
	}
	content := envelope[idx+1:]
	if size != int64(len(content)) {
		return "", nil, fmt.Errorf("envelope length %d does not match content length %d: %w", size, len(content), ErrMalformed)
	}
	return objType, content, nil
}

// ---------------------------------------------------------------------------
// Typed wrappers
// ---------------------------------------------------------------------------

// WriteBlob stores a blob and returns its hash.
func (s *Store) WriteBlob(b *Blob) (Hash, error) {
	return s.Write(TypeBlob, MarshalBlob(b))
}

// ReadBlob reads a blob by hash.
func (s *Store) ReadBlob(hash Hash) (*Blob, error) {
	objType, data, err := s.Read(hash)
	if err != nil {
		return nil, err
	}
	if objType != TypeBlob {
		return nil, fmt.Errorf("object %s: type mismatch: expected %s, got %s", hash, TypeBlob, objType)
	}
	return UnmarshalBlob(data)
}

// WriteTree validates and stores a tree, returning its hash.
func (s *Store) WriteTree(tr *TreeObj) (Hash, error) {
	if err := ValidateTree(tr); err != nil {
		return "", fmt.Errorf("write tree: %w", err)
	}
	return s.Write(TypeTree, MarshalTree(tr))
}

// ReadTree reads a tree by hash.
func (s *Store) ReadTree(hash Hash) (*TreeObj, error) {
	objType, data, err := s.Read(hash)
	if err != nil {
		return nil, err
	}
	if objType != TypeTree {
		return nil, fmt.Errorf("object %s: type mismatch: expected %s, got %s", hash, TypeTree, objType)
	}
	return UnmarshalTree(data)
}

// WriteCommit stores a commit and returns its hash.
func (s *Store) WriteCommit(c *CommitObj) (Hash, error) {
	return s.Write(TypeCommit, MarshalCommit(c))
}

// ReadCommit reads a commit by hash.
func (s *Store) ReadCommit(hash Hash) (*CommitObj, error) {
	objType, data, err := s.Read(hash)
	if err != nil {
		return nil, err
	}
	if objType != TypeCommit {
		return nil, fmt.Errorf("object %s: type mismatch: expected %s, got %s", hash, TypeCommit, objType)
	}
	return UnmarshalCommit(data)
}
