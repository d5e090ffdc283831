package cli

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fenlang/fen/internal/resolver"
	"github.com/fenlang/fen/internal/schema"
)

func TestInit_WritesSampleConfigAndSchema(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "fen", "fen.yaml")

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"init", "--out", path})

	if err := root.Execute(); err != nil {
		t.Fatalf("init execute: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, "Fen configuration") {
		t.Fatalf("unexpected config contents: %s", s)
	}

	// The sample config must be accepted by generate.
	cfg := defaultGenerateConfig()
	if err := applyGenerateConfigFromFile(&cfg, path); err != nil {
		t.Fatalf("sample config rejected: %v", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		t.Fatalf("sample config invalid: %v", err)
	}

	// The starter schema must resolve.
	raw, err := os.ReadFile(filepath.Join(dir, "fen", "schema.yaml"))
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	doc, err := schema.Parse(raw, "schema.yaml")
	if err != nil {
		t.Fatalf("parse starter schema: %v", err)
	}
	if _, err := resolver.Resolve(doc); err != nil {
		t.Fatalf("resolve starter schema: %v", err)
	}
}

func TestInit_KeepsExistingSchema(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "mine.yaml")
	if err := os.WriteFile(schemaPath, []byte("name: Mine\n"), 0o600); err != nil {
		t.Fatalf("prewrite: %v", err)
	}

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"init", "--out", filepath.Join(dir, "fen.yaml"), "--schema", schemaPath, "--force"})

	if err := root.Execute(); err != nil {
		t.Fatalf("init execute: %v", err)
	}
	if b, _ := os.ReadFile(schemaPath); string(b) != "name: Mine\n" {
		t.Fatalf("existing schema replaced: %q", b)
	}
}

func TestInit_ExistingWithoutForce(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "fen.yaml")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("prewrite: %v", err)
	}

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"init", "--out", path, "--schema", "-"})

	err := root.Execute()
	if err == nil {
		t.Fatalf("expected error for existing file without --force")
	}
	if _, ok := err.(usageError); !ok {
		t.Fatalf("expected usage error, got %T: %v", err, err)
	}
}
