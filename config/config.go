// Package config handles ncsdecomp.toml settings.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/chazu/ncsdecomp/decompiler"
	"github.com/chazu/ncsdecomp/pkg/actions"
)

// FileName is the name FindAndLoad looks for.
const FileName = "ncsdecomp.toml"

var ErrInvalid = errors.New("config: invalid setting")

// Config represents an ncsdecomp.toml file.
type Config struct {
	Output    Output    `toml:"output"`
	Decompile Decompile `toml:"decompile"`
	Actions   Actions   `toml:"actions"`
	Cache     Cache     `toml:"cache"`
	Log       Log       `toml:"log"`

	// Dir is the directory containing the config file (set at load time).
	// Relative paths in the file are resolved against it.
	Dir string `toml:"-"`
}

// Output configures where and how scripts are written.
type Output struct {
	Dir       string `toml:"dir"`
	Indent    string `toml:"indent"`
	Extension string `toml:"extension"`
}

// Decompile tunes the engine.
type Decompile struct {
	// Workers bounds parallel subroutine decompilation; 0 means GOMAXPROCS.
	Workers int `toml:"workers"`
}

// Actions selects the routine catalog. An empty path uses the built-in one.
type Actions struct {
	Path string `toml:"path"`
}

// Cache configures the result cache. An empty path keeps results in memory
// for the lifetime of the process.
type Cache struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the settings used when no file is present.
func Default() *Config {
	return &Config{
		Output: Output{
			Dir:       ".",
			Indent:    decompiler.DefaultIndent,
			Extension: ".nss",
		},
		Cache: Cache{Enabled: true},
	}
}

// Parse decodes TOML settings on top of the defaults.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if _, err := toml.Decode(string(data), c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load parses the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find an ncsdecomp.toml file, then
// loads and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Validate reports settings no component can honor.
func (c *Config) Validate() error {
	if c.Decompile.Workers < 0 {
		return fmt.Errorf("%w: decompile.workers = %d", ErrInvalid, c.Decompile.Workers)
	}
	if c.Output.Extension == "" {
		return fmt.Errorf("%w: output.extension is empty", ErrInvalid)
	}
	return nil
}

// Resolve returns p relative to the config directory unless it is absolute
// or empty.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// OutputDir returns the resolved output directory.
func (c *Config) OutputDir() string {
	return c.Resolve(c.Output.Dir)
}

// CachePath returns the resolved cache database path, or "" for an
// in-memory cache.
func (c *Config) CachePath() string {
	return c.Resolve(c.Cache.Path)
}

// LogPath returns the log file for commonlog.Configure, nil meaning stderr.
func (c *Config) LogPath() *string {
	if c.Log.File == "" {
		return nil
	}
	p := c.Resolve(c.Log.File)
	return &p
}

// Catalog loads the configured routine catalog.
func (c *Config) Catalog() (actions.Catalog, error) {
	if c.Actions.Path == "" {
		return actions.Default(), nil
	}
	t, err := actions.Load(c.Resolve(c.Actions.Path))
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Options converts the settings into decompiler options.
func (c *Config) Options() (decompiler.Options, error) {
	cat, err := c.Catalog()
	if err != nil {
		return decompiler.Options{}, err
	}
	return decompiler.Options{
		Catalog: cat,
		Indent:  c.Output.Indent,
		Workers: c.Decompile.Workers,
	}, nil
}

// Variant identifies the settings that change rendered output, for cache
// keys. A custom catalog contributes a digest of its contents, so editing it
// in place invalidates earlier results.
func (c *Config) Variant() string {
	v := fmt.Sprintf("indent=%q", c.Output.Indent)
	if c.Actions.Path == "" {
		return v
	}
	path := c.Resolve(c.Actions.Path)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("%s actions=%q unreadable", v, path)
	}
	sum := sha256.Sum256(data)
	return v + " actions=" + hex.EncodeToString(sum[:])
}
