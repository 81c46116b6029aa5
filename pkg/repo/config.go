package repo

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/odvcencio/grove/pkg/object"
)

// Config stores repository-local settings, persisted as .grove/config.toml.
type Config struct {
	User     UserConfig     `toml:"user"`
	Core     CoreConfig     `toml:"core"`
	Snapshot SnapshotConfig `toml:"snapshot"`
	Diff     DiffConfig     `toml:"diff"`
	Sign     SignConfig     `toml:"sign"`
}

// UserConfig identifies the author recorded in commits.
type UserConfig struct {
	Name  string `toml:"name"`
	Email string `toml:"email"`
}

// CoreConfig fixes the store's on-disk parameters. Both values are chosen
// at init time; changing the hash renames every object.
type CoreConfig struct {
	Hash        string `toml:"hash"`        // sha256 or blake3
	Compression string `toml:"compression"` // none, lz4, or zstd
}

// SnapshotConfig tunes tree building.
type SnapshotConfig struct {
	Workers int `toml:"workers"` // 0 picks a value from the machine
}

// DiffConfig sets the default comparison options.
type DiffConfig struct {
	Renames     bool `toml:"renames"`
	ModeChanges bool `toml:"mode_changes"`
}

// SignConfig enables commit signing when a key path is set.
type SignConfig struct {
	Key string `toml:"key"` // path to an SSH private key
}

// DefaultConfig returns the settings a fresh repository starts with.
func DefaultConfig() *Config {
	return &Config{
		Core: CoreConfig{
			Hash:        string(object.DefaultAlgorithm),
			Compression: object.DefaultCodec.String(),
		},
		Diff: DiffConfig{
			Renames:     true,
			ModeChanges: true,
		},
	}
}

// Identity formats the configured user as "Name <email>" for commit
// metadata. An unconfigured user yields "unknown".
func (c *Config) Identity() string {
	name := strings.TrimSpace(c.User.Name)
	email := strings.TrimSpace(c.User.Email)
	switch {
	case name == "" && email == "":
		return "unknown"
	case email == "":
		return name
	case name == "":
		return fmt.Sprintf("unknown <%s>", email)
	default:
		return fmt.Sprintf("%s <%s>", name, email)
	}
}

func (r *Repo) configPath() string {
	return filepath.Join(r.GroveDir, "config.toml")
}

// ReadConfig reads .grove/config.toml, layering the file's contents over
// the defaults so missing keys keep their default values. A missing file
// returns the defaults.
func (r *Repo) ReadConfig() (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(r.configPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("read config: decode: %w", err)
	}
	return cfg, nil
}

// WriteConfig atomically writes .grove/config.toml.
func (r *Repo) WriteConfig(cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("write config: encode: %w", err)
	}

	tmp, err := os.CreateTemp(r.GroveDir, ".config-tmp-*")
	if err != nil {
		return fmt.Errorf("write config: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: close: %w", err)
	}
	if err := os.Rename(tmpName, r.configPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: rename: %w", err)
	}
	return nil
}
