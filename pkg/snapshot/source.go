// Package snapshot builds stored object trees from directory-shaped
// inputs. A Source abstracts where the input lives; Builder walks it
// bottom-up and writes one blob per file and one tree per directory,
// producing the same root hash for the same logical content no matter
// how the source enumerates it.
package snapshot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/grove/pkg/object"
)

// Entry describes one name inside a directory of the input.
type Entry struct {
	Name string
	Mode string // one of the object.TreeMode constants
	Dir  bool
}

// Source is a directory-shaped input to snapshot. Implementations may
// return entries in any order; the builder canonicalizes.
type Source interface {
	// List returns the entries of the directory at relPath. The root
	// directory is the empty string.
	List(relPath string) ([]Entry, error)
	// ReadFile returns the content of the file at relPath.
	ReadFile(relPath string) ([]byte, error)
}

// MapSource serves an in-memory file tree keyed by slash-separated
// relative paths. Intermediate directories are implied by the keys.
type MapSource map[string][]byte

// List derives the immediate children of relPath from the map keys.
func (m MapSource) List(relPath string) ([]Entry, error) {
	prefix := ""
	if relPath != "" {
		prefix = relPath + "/"
	}

	byName := make(map[string]Entry)
	for path := range m {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || rest == "" {
			continue
		}
		name, _, nested := strings.Cut(rest, "/")
		if nested {
			byName[name] = Entry{Name: name, Mode: object.TreeModeDir, Dir: true}
			continue
		}
		if _, exists := byName[name]; !exists {
			byName[name] = Entry{Name: name, Mode: object.TreeModeFile, Dir: false}
		}
	}
	if len(byName) == 0 && relPath != "" {
		return nil, fmt.Errorf("no directory %q", relPath)
	}

	out := make([]Entry, 0, len(byName))
	for _, e := range byName {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ReadFile returns the mapped content for relPath.
func (m MapSource) ReadFile(relPath string) ([]byte, error) {
	data, ok := m[relPath]
	if !ok {
		return nil, fmt.Errorf("no file %q", relPath)
	}
	return data, nil
}
