package snapshot

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/odvcencio/grove/pkg/object"
)

// DirSource reads snapshot input from a directory on disk. Listings
// filter out ignored paths and skip non-regular files (symlinks,
// sockets, devices).
type DirSource struct {
	Root   string
	Ignore *IgnoreChecker
}

// NewDirSource opens root as a source, loading ignore rules from its
// .groveignore file if present.
func NewDirSource(root string) *DirSource {
	return &DirSource{Root: root, Ignore: NewIgnoreChecker(root)}
}

func (d *DirSource) List(relPath string) ([]Entry, error) {
	dirents, err := os.ReadDir(filepath.Join(d.Root, filepath.FromSlash(relPath)))
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(dirents))
	for _, de := range dirents {
		rel := de.Name()
		if relPath != "" {
			rel = relPath + "/" + de.Name()
		}
		if d.Ignore != nil && d.Ignore.IsIgnored(rel) {
			continue
		}
		if de.IsDir() {
			entries = append(entries, Entry{Name: de.Name(), Mode: object.TreeModeDir, Dir: true})
			continue
		}
		info, err := de.Info()
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			continue
		}
		entries = append(entries, Entry{Name: de.Name(), Mode: modeFromFileMode(info.Mode())})
	}
	return entries, nil
}

func (d *DirSource) ReadFile(relPath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(d.Root, filepath.FromSlash(relPath)))
}

func modeFromFileMode(mode fs.FileMode) string {
	if mode&0o111 != 0 {
		return object.TreeModeExecutable
	}
	return object.TreeModeFile
}
