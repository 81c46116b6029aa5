package object

// Hash is a 64-character hex-encoded object digest.
type Hash string

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
)

const (
	// Tree mode constants compatible with Git's canonical mode strings.
	TreeModeDir        = "40000"
	TreeModeFile       = "100644"
	TreeModeExecutable = "100755"
)

// Blob holds raw file data.
type Blob struct {
	Data []byte
}

// TreeEntry is one entry in a tree object. Type is TypeTree for
// subdirectories and TypeBlob for files.
type TreeEntry struct {
	Mode string
	Type ObjectType
	Hash Hash
	Name string
}

// IsDir reports whether the entry points at a subtree.
func (e TreeEntry) IsDir() bool {
	return e.Type == TypeTree
}

// TreeObj holds a sorted list of tree entries.
type TreeObj struct {
	Entries []TreeEntry // sorted by Name
}

// Entry returns the named entry, if present.
func (tr *TreeObj) Entry(name string) (TreeEntry, bool) {
	for _, e := range tr.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}

// CommitObj represents a commit pointing to a tree with metadata.
type CommitObj struct {
	TreeHash  Hash
	Parents   []Hash
	Author    string
	Committer string
	Timestamp int64
	Signature string
	Message   string
}
