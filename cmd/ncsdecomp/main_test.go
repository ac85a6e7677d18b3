package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/ncsdecomp/cache"
	"github.com/chazu/ncsdecomp/config"
	"github.com/chazu/ncsdecomp/pkg/bytecode"
)

func writeScript(t *testing.T, dir, name string) string {
	t.Helper()
	b := bytecode.NewBuilder()
	b.ConstString("hello").Action(1, 1)
	b.Retn()
	data, err := b.MustBuild().Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunWritesSourceAndCaches(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "greet.ncs")

	cfg := config.Default()
	cfg.Dir = dir
	cfg.Output.Dir = "out"
	r, err := newRunner(cfg)
	if err != nil {
		t.Fatalf("newRunner: %v", err)
	}
	defer r.close()

	ok, err := r.run(context.Background(), script, nil)
	if err != nil || !ok {
		t.Fatalf("run = %v, %v", ok, err)
	}
	out, err := os.ReadFile(filepath.Join(dir, "out", "greet.nss"))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if !strings.Contains(string(out), `PrintString("hello");`) {
		t.Errorf("output = %q, want PrintString call", out)
	}

	mem, isMem := r.store.(*cache.MemoryStore)
	if !isMem {
		t.Fatalf("store = %T, want *cache.MemoryStore", r.store)
	}
	if mem.Len() != 1 {
		t.Errorf("cache entries = %d, want 1", mem.Len())
	}

	var buf bytes.Buffer
	if _, err := r.run(context.Background(), script, &buf); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if buf.String() != string(out) {
		t.Errorf("cached output differs:\n%s\nvs\n%s", buf.String(), out)
	}
	if mem.Len() != 1 {
		t.Errorf("cache entries after hit = %d, want 1", mem.Len())
	}
}

func TestRunWithoutCache(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "a.ncs")

	cfg := config.Default()
	cfg.Cache.Enabled = false
	r, err := newRunner(cfg)
	if err != nil {
		t.Fatalf("newRunner: %v", err)
	}
	defer r.close()

	var buf bytes.Buffer
	if _, err := r.run(context.Background(), script, &buf); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(buf.String(), "void main()") {
		t.Errorf("output = %q, want main routine", buf.String())
	}
}

func TestRunRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.ncs")
	if err := os.WriteFile(path, []byte("not a script"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Cache.Enabled = false
	r, err := newRunner(cfg)
	if err != nil {
		t.Fatalf("newRunner: %v", err)
	}
	if _, err := r.run(context.Background(), path, &bytes.Buffer{}); err == nil {
		t.Error("run accepted a file without an NCS header")
	}
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "a.ncs")
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	writeScript(t, filepath.Join(dir, "sub"), "b.NCS")
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	files, err := collectFiles([]string{dir})
	if err != nil {
		t.Fatalf("collectFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %v, want 2 scripts", files)
	}
}

func TestPrintDisassembly(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "greet.ncs")
	var buf bytes.Buffer
	if err := printDisassembly(&buf, script); err != nil {
		t.Fatalf("printDisassembly: %v", err)
	}
	if !strings.Contains(buf.String(), "greet") || !strings.Contains(buf.String(), "ACTION") {
		t.Errorf("listing = %q, want name and ACTION", buf.String())
	}
}
