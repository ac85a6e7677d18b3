package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[output]
dir = "out"
indent = "    "
extension = ".nss"

[decompile]
workers = 3

[actions]
path = "routines.yaml"

[cache]
enabled = true
path = "cache.db"

[log]
verbosity = 2
file = "ncsdecomp.log"
`
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.Output.Indent != "    " {
		t.Errorf("indent = %q, want four spaces", c.Output.Indent)
	}
	if c.Decompile.Workers != 3 {
		t.Errorf("workers = %d, want 3", c.Decompile.Workers)
	}
	if c.Log.Verbosity != 2 {
		t.Errorf("verbosity = %d, want 2", c.Log.Verbosity)
	}
	if got, want := c.OutputDir(), filepath.Join(dir, "out"); got != want {
		t.Errorf("OutputDir() = %q, want %q", got, want)
	}
	if got, want := c.CachePath(), filepath.Join(dir, "cache.db"); got != want {
		t.Errorf("CachePath() = %q, want %q", got, want)
	}
	if p := c.LogPath(); p == nil || *p != filepath.Join(dir, "ncsdecomp.log") {
		t.Errorf("LogPath() = %v, want %s", p, filepath.Join(dir, "ncsdecomp.log"))
	}
}

func TestDefaults(t *testing.T) {
	c, err := Parse([]byte(`
[decompile]
workers = 2
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if c.Output.Indent != "\t" {
		t.Errorf("indent = %q, want tab", c.Output.Indent)
	}
	if c.Output.Extension != ".nss" {
		t.Errorf("extension = %q, want .nss", c.Output.Extension)
	}
	if !c.Cache.Enabled {
		t.Error("cache.enabled = false, want true")
	}
	if c.CachePath() != "" {
		t.Errorf("CachePath() = %q, want empty", c.CachePath())
	}
	if c.LogPath() != nil {
		t.Errorf("LogPath() = %q, want nil", *c.LogPath())
	}
}

func TestInvalidWorkers(t *testing.T) {
	_, err := Parse([]byte("[decompile]\nworkers = -1\n"))
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestMalformed(t *testing.T) {
	_, err := Parse([]byte("[output\n"))
	if err == nil || !strings.Contains(err.Error(), "config:") {
		t.Fatalf("err = %v, want config parse error", err)
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, FileName), []byte("[output]\ndir = \"gen\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c == nil {
		t.Fatal("FindAndLoad returned nil, want config from ancestor")
	}
	if got, want := c.OutputDir(), filepath.Join(root, "gen"); got != want {
		t.Errorf("OutputDir() = %q, want %q", got, want)
	}
}

func TestOptions(t *testing.T) {
	dir := t.TempDir()
	catalog := `
actions:
  - id: 7
    name: Custom
    returns: int
`
	if err := os.WriteFile(filepath.Join(dir, "routines.yaml"), []byte(catalog), 0644); err != nil {
		t.Fatal(err)
	}
	c := Default()
	c.Dir = dir
	c.Actions.Path = "routines.yaml"
	c.Decompile.Workers = 4

	opts, err := c.Options()
	if err != nil {
		t.Fatalf("Options failed: %v", err)
	}
	if opts.Workers != 4 {
		t.Errorf("workers = %d, want 4", opts.Workers)
	}
	a, ok := opts.Catalog.Lookup(7)
	if !ok || a.Name != "Custom" {
		t.Errorf("Lookup(7) = %+v, %v; want Custom", a, ok)
	}

	c.Actions.Path = "missing.yaml"
	if _, err := c.Options(); err == nil {
		t.Error("Options with missing catalog succeeded, want error")
	}
}

func TestVariantTracksOutputSettings(t *testing.T) {
	a := Default()
	b := Default()
	b.Output.Indent = "  "
	if a.Variant() == b.Variant() {
		t.Error("Variant() ignores indent")
	}
}

func TestVariantTracksCatalogContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routines.yaml")
	if err := os.WriteFile(path, []byte("- id: 7\n  name: Custom\n  returns: void\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	cfg.Dir = dir
	cfg.Actions.Path = "routines.yaml"
	before := cfg.Variant()
	if before == Default().Variant() {
		t.Error("Variant() ignores the custom catalog")
	}
	if cfg.Variant() != before {
		t.Error("Variant() is not stable")
	}

	if err := os.WriteFile(path, []byte("- id: 7\n  name: Renamed\n  returns: void\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if cfg.Variant() == before {
		t.Error("Variant() unchanged after editing the catalog in place")
	}
}
