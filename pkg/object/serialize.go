package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Blob
// ---------------------------------------------------------------------------

// MarshalBlob serializes a Blob to raw bytes (identity).
func MarshalBlob(b *Blob) []byte {
	out := make([]byte, len(b.Data))
	copy(out, b.Data)
	return out
}

// UnmarshalBlob deserializes raw bytes into a Blob.
func UnmarshalBlob(data []byte) (*Blob, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{Data: out}, nil
}

// ---------------------------------------------------------------------------
// TreeObj
// ---------------------------------------------------------------------------

// MarshalTree serializes a TreeObj. Entries are sorted by Name so the same
// entry set always produces the same bytes regardless of insertion order.
// Each entry is one line:
//
//	mode type hash name
//
// where mode is a Git-compatible mode string (40000, 100644, 100755). The
// name comes last: it is the only field that may contain spaces.
func MarshalTree(tr *TreeObj) []byte {
	sorted := make([]TreeEntry, len(tr.Entries))
	copy(sorted, tr.Entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	var buf bytes.Buffer
	for _, e := range sorted {
		fmt.Fprintf(&buf, "%s %s %s %s\n", treeModeOrDefault(e), treeTypeOrDefault(e), string(e.Hash), e.Name)
	}
	return buf.Bytes()
}

// UnmarshalTree parses a TreeObj from its serialized form.
func UnmarshalTree(data []byte) (*TreeObj, error) {
	tr := &TreeObj{}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return tr, nil
	}
	for _, line := range strings.Split(text, "\n") {
		parts := strings.SplitN(line, " ", 4)
		if len(parts) != 4 {
			return nil, fmt.Errorf("unmarshal tree: entry %q: %w", line, ErrMalformed)
		}
		mode := parts[0]
		if err := validTreeMode(mode); err != nil {
			return nil, fmt.Errorf("unmarshal tree: %v: %w", err, ErrMalformed)
		}
		objType := ObjectType(parts[1])
		if objType != TypeBlob && objType != TypeTree {
			return nil, fmt.Errorf("unmarshal tree: entry type %q: %w", parts[1], ErrMalformed)
		}
		if (mode == TreeModeDir) != (objType == TypeTree) {
			return nil, fmt.Errorf("unmarshal tree: mode %s disagrees with type %s: %w", mode, objType, ErrMalformed)
		}
		if err := ValidateEntryName(parts[3]); err != nil {
			return nil, fmt.Errorf("unmarshal tree: %v: %w", err, ErrMalformed)
		}
		tr.Entries = append(tr.Entries, TreeEntry{
			Mode: mode,
			Type: objType,
			Hash: Hash(parts[2]),
			Name: parts[3],
		})
	}
	return tr, nil
}

// ValidateTree rejects trees that cannot round-trip the canonical encoding:
// illegal or duplicate names, missing hashes, or mode/type disagreements.
// The store refuses to persist a tree that fails this check.
func ValidateTree(tr *TreeObj) error {
	seen := make(map[string]struct{}, len(tr.Entries))
	for _, e := range tr.Entries {
		if err := ValidateEntryName(e.Name); err != nil {
			return err
		}
		if _, dup := seen[e.Name]; dup {
			return fmt.Errorf("tree entry %q: duplicate name", e.Name)
		}
		seen[e.Name] = struct{}{}

		if strings.TrimSpace(string(e.Hash)) == "" {
			return fmt.Errorf("tree entry %q: missing hash", e.Name)
		}
		mode := treeModeOrDefault(e)
		if err := validTreeMode(mode); err != nil {
			return fmt.Errorf("tree entry %q: %v", e.Name, err)
		}
		if (mode == TreeModeDir) != (treeTypeOrDefault(e) == TypeTree) {
			return fmt.Errorf("tree entry %q: mode %s disagrees with type %s", e.Name, mode, treeTypeOrDefault(e))
		}
	}
	return nil
}

// ValidateEntryName rejects names that cannot appear in a tree: empty
// strings, path separators, control bytes, and the directory dots.
func ValidateEntryName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty entry name")
	case name == "." || name == "..":
		return fmt.Errorf("entry name %q is reserved", name)
	case strings.ContainsAny(name, "/\x00\n"):
		return fmt.Errorf("entry name %q contains a separator or control byte", name)
	}
	return nil
}

func treeModeOrDefault(e TreeEntry) string {
	if e.IsDir() {
		return TreeModeDir
	}
	if strings.TrimSpace(e.Mode) == "" {
		return TreeModeFile
	}
	return e.Mode
}

func treeTypeOrDefault(e TreeEntry) ObjectType {
	if e.Type != "" {
		return e.Type
	}
	if e.Mode == TreeModeDir {
		return TypeTree
	}
	return TypeBlob
}

func validTreeMode(mode string) error {
	switch mode {
	case TreeModeDir, TreeModeFile, TreeModeExecutable:
		return nil
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

// ---------------------------------------------------------------------------
// CommitObj
// ---------------------------------------------------------------------------

// MarshalCommit serializes a CommitObj:
//
//	tree H
//	parent H     (zero or more)
//	author A
//	committer C
//	timestamp T
//	signature S  (optional)
//
//	message
func MarshalCommit(c *CommitObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", string(c.TreeHash))
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", string(p))
	}
	fmt.Fprintf(&buf, "author %s\n", c.Author)
	fmt.Fprintf(&buf, "committer %s\n", committerOrAuthor(c))
	fmt.Fprintf(&buf, "timestamp %d\n", c.Timestamp)
	if strings.TrimSpace(c.Signature) != "" {
		fmt.Fprintf(&buf, "signature %s\n", c.Signature)
	}
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

func committerOrAuthor(c *CommitObj) string {
	if strings.TrimSpace(c.Committer) != "" {
		return c.Committer
	}
	return c.Author
}

// UnmarshalCommit parses a CommitObj from its serialized form.
func UnmarshalCommit(data []byte) (*CommitObj, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, fmt.Errorf("unmarshal commit: missing header/message separator: %w", ErrMalformed)
	}
	header := string(data[:idx])
	message := string(data[idx+2:])

	c := &CommitObj{Message: message}
	for _, line := range strings.Split(header, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal commit: header line %q: %w", line, ErrMalformed)
		}
		switch key {
		case "tree":
			c.TreeHash = Hash(val)
		case "parent":
			c.Parents = append(c.Parents, Hash(val))
		case "author":
			c.Author = val
		case "committer":
			c.Committer = val
		case "timestamp":
			ts, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: bad timestamp %q: %w", val, ErrMalformed)
			}
			c.Timestamp = ts
		case "signature":
			c.Signature = val
		default:
			return nil, fmt.Errorf("unmarshal commit: unknown header key %q: %w", key, ErrMalformed)
		}
	}
	if c.TreeHash == "" {
		return nil, fmt.Errorf("unmarshal commit: missing tree header: %w", ErrMalformed)
	}
	return c, nil
}
