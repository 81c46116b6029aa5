// Package repo binds the object store, snapshot builder, and refs into a
// repository rooted at a working directory. All repository metadata lives
// under the .grove directory.
package repo

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/grove/pkg/object"
)

const (
	groveDirName  = ".grove"
	objectsDir    = "objects"
	defaultBranch = "main"
)

// Repo represents an opened grove repository.
type Repo struct {
	RootDir  string        // working directory root
	GroveDir string        // .grove/ directory
	Store    *object.Store // content-addressed object store
	Config   *Config
	Logger   *slog.Logger // optional, nil falls back to slog.Default
}

// Init creates a new repository at path: the .grove/ directory with
// objects/, refs, a HEAD pointing at the default branch, and a config
// file with defaults. Returns an error if a repository already exists.
func Init(path string) (*Repo, error) {
	groveDir := filepath.Join(path, groveDirName)

	if _, err := os.Stat(groveDir); err == nil {
		return nil, fmt.Errorf("init: repository already exists at %s", groveDir)
	}

	dirs := []string{
		filepath.Join(groveDir, objectsDir),
		filepath.Join(groveDir, "refs", "heads"),
		filepath.Join(groveDir, "refs", "tags"),
		filepath.Join(groveDir, "logs", "refs", "heads"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("init: mkdir %s: %w", d, err)
		}
	}

	headPath := filepath.Join(groveDir, "HEAD")
	headContent := fmt.Sprintf("ref: refs/heads/%s\n", defaultBranch)
	if err := os.WriteFile(headPath, []byte(headContent), 0o644); err != nil {
		return nil, fmt.Errorf("init: write HEAD: %w", err)
	}

	r := &Repo{
		RootDir:  path,
		GroveDir: groveDir,
		Config:   DefaultConfig(),
	}
	if err := r.WriteConfig(r.Config); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}

	store, err := storeFromConfig(groveDir, r.Config)
	if err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	r.Store = store
	return r, nil
}

// Open searches upward from path for a .grove/ directory, loads the
// repository config, and constructs the store with the configured hash
// algorithm and compression codec.
func Open(path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}

	cur := abs
	for {
		groveDir := filepath.Join(cur, groveDirName)
		info, err := os.Stat(groveDir)
		if err == nil && info.IsDir() {
			r := &Repo{RootDir: cur, GroveDir: groveDir}
			cfg, err := r.ReadConfig()
			if err != nil {
				return nil, fmt.Errorf("open: %w", err)
			}
			r.Config = cfg

			store, err := storeFromConfig(groveDir, cfg)
			if err != nil {
				return nil, fmt.Errorf("open: %w", err)
			}
			r.Store = store
			return r, nil
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, fmt.Errorf("open: not a grove repository (or any parent up to /)")
		}
		cur = parent
	}
}

func storeFromConfig(groveDir string, cfg *Config) (*object.Store, error) {
	algo, err := object.ParseAlgorithm(cfg.Core.Hash)
	if err != nil {
		return nil, fmt.Errorf("config core.hash: %w", err)
	}
	codec, err := object.ParseCodec(cfg.Core.Compression)
	if err != nil {
		return nil, fmt.Errorf("config core.compression: %w", err)
	}
	return object.NewStoreWith(filepath.Join(groveDir, objectsDir), algo, codec), nil
}

// Head reads .grove/HEAD. If the content starts with "ref: ", it returns
// the ref path (e.g. "refs/heads/main"); otherwise the raw content as a
// detached hash string.
func (r *Repo) Head() (string, error) {
	data, err := os.ReadFile(filepath.Join(r.GroveDir, "HEAD"))
	if err != nil {
		return "", fmt.Errorf("head: %w", err)
	}
	content := strings.TrimRight(string(data), "\n")

	if strings.HasPrefix(content, "ref: ") {
		return strings.TrimPrefix(content, "ref: "), nil
	}
	return content, nil
}

func (r *Repo) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
