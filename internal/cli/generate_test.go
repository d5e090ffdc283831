package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// captureGenerate swaps the runner for one that records the resolved config.
// Tests using it must not run in parallel.
func captureGenerate(t *testing.T) **GenerateConfig {
	t.Helper()
	var captured *GenerateConfig
	generateRunner = func(ctx context.Context, cfg *GenerateConfig, stdout, stderr io.Writer) error {
		captured = cfg
		return nil
	}
	t.Cleanup(func() { generateRunner = runGenerate })
	return &captured
}

func executeRoot(t *testing.T, args ...string) error {
	t.Helper()
	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	return root.Execute()
}

func TestGenerateConfigFromFlags(t *testing.T) {
	captured := captureGenerate(t)

	err := executeRoot(t,
		"--verbose",
		"generate",
		"--schema", "api.yaml",
		"--target", "npm",
		"--out", "./build",
		"--package-name", "@acme/api",
		"--endpoint", "http://localhost:8080",
		"--endpoint-prod", "https://api.example.com",
		"--envelope-key", "data",
		"--dry-run",
		"--force",
	)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	cfg := *captured
	if cfg == nil {
		t.Fatalf("expected config to be captured")
	}

	if cfg.Schema != "api.yaml" {
		t.Errorf("schema mismatch: got %q", cfg.Schema)
	}
	want := []OutputConfig{{Target: "npm", Path: "./build", PackageName: "@acme/api"}}
	if diff := cmp.Diff(want, cfg.Outputs); diff != "" {
		t.Errorf("outputs (-want +got):\n%s", diff)
	}
	if cfg.Endpoint != "http://localhost:8080" || cfg.EndpointProd != "https://api.example.com" {
		t.Errorf("endpoints mismatch: %q %q", cfg.Endpoint, cfg.EndpointProd)
	}
	if cfg.EnvelopeKey != "data" {
		t.Errorf("envelope key mismatch: got %q", cfg.EnvelopeKey)
	}
	if !cfg.DryRun || !cfg.Force || !cfg.Verbose {
		t.Errorf("expected dry-run, force and verbose: %+v", cfg)
	}
}

func TestGenerateConfigSeveralTargetsShareOut(t *testing.T) {
	captured := captureGenerate(t)

	err := executeRoot(t, "generate",
		"--schema", "api.yaml",
		"--target", "go,Swift",
		"--target", "go",
		"--out", "clients",
		"--endpoint", "http://localhost:8080",
	)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	want := []OutputConfig{
		{Target: "go", Path: filepath.Join("clients", "go")},
		{Target: "swift", Path: filepath.Join("clients", "swift")},
	}
	if diff := cmp.Diff(want, (*captured).Outputs); diff != "" {
		t.Errorf("outputs (-want +got):\n%s", diff)
	}
	if (*captured).EnvelopeKey != "value" {
		t.Errorf("default envelope key: got %q", (*captured).EnvelopeKey)
	}
}

func TestGenerateConfigPrecedence(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "fen.yaml")
	configContent := strings.TrimSpace(`schema: config-schema.yaml
endpoint_dev: http://localhost:9000
endpoint-prod: https://prod.example.com
out: from-config
packageName: cfgpkg
outputs:
  - language: swift
    path: ./Api
  - target: go
    packageName: apiclient
dryRun: true
force: false
verbose: true
`) + "\n"

	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	captured := captureGenerate(t)
	err := executeRoot(t,
		"--config", configPath,
		"generate",
		"--schema", "flag-schema.yaml",
		"--endpoint", "http://localhost:8080",
		"--dry-run=false",
		"--force",
	)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	cfg := *captured

	if cfg.Schema != "flag-schema.yaml" {
		t.Errorf("schema: want %q got %q", "flag-schema.yaml", cfg.Schema)
	}
	if cfg.Endpoint != "http://localhost:8080" {
		t.Errorf("endpoint: flag should win, got %q", cfg.Endpoint)
	}
	if cfg.EndpointProd != "https://prod.example.com" {
		t.Errorf("endpoint prod: got %q", cfg.EndpointProd)
	}
	want := []OutputConfig{
		{Target: "swift", Path: "./Api", PackageName: "cfgpkg"},
		{Target: "go", Path: filepath.Join("from-config", "go"), PackageName: "apiclient"},
	}
	if diff := cmp.Diff(want, cfg.Outputs); diff != "" {
		t.Errorf("outputs (-want +got):\n%s", diff)
	}
	if cfg.DryRun {
		t.Errorf("expected dry-run false after flag override")
	}
	if !cfg.Force {
		t.Errorf("expected force true after flag override")
	}
	if !cfg.Verbose {
		t.Errorf("expected verbose true from config file")
	}
	if cfg.ConfigPath != configPath {
		t.Errorf("config path mismatch: got %q", cfg.ConfigPath)
	}
}

func TestGenerateConfigTargetFlagReplacesOutputs(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "fen.yaml")
	content := "schema: api.yaml\noutputs:\n  - { target: swift, path: ./Api }\nendpoint: https://api.example.com\n"
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	captured := captureGenerate(t)
	if err := executeRoot(t, "-c", configPath, "generate", "--target", "python", "--out", "py"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	want := []OutputConfig{{Target: "python", Path: "py"}}
	if diff := cmp.Diff(want, (*captured).Outputs); diff != "" {
		t.Errorf("outputs (-want +got):\n%s", diff)
	}
}

func TestGenerateConfigServerBlock(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "fen.yaml")
	content := "schema: api.yaml\nendpoint: http://localhost:8080\nout: clients\n" +
		"outputs:\n  - { target: swift }\n" +
		"server:\n  path: ./server/src/fen\n"
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	captured := captureGenerate(t)
	if err := executeRoot(t, "-c", configPath, "generate"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	want := []OutputConfig{
		{Target: "swift", Path: filepath.Join("clients", "swift")},
		{Target: "rust", Path: "./server/src/fen"},
	}
	if diff := cmp.Diff(want, (*captured).Outputs); diff != "" {
		t.Errorf("outputs (-want +got):\n%s", diff)
	}
}

func TestGenerateConfigErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
		return path
	}
	unknownKey := write("unknown.yaml", "unknown: value\n")
	badOutput := write("output.yaml", "outputs:\n  - { target: go, dir: x }\n")
	both := write("both.yaml", "targets: [go]\noutputs:\n  - { target: swift }\n")
	badServer := write("server.yaml", "server:\n  dir: ./server\n")

	base := []string{"--schema", "s.yaml", "--endpoint", "http://localhost:8080"}
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown config key", append([]string{"-c", unknownKey, "generate"}, base...), "unknown field"},
		{"unknown output key", append([]string{"-c", badOutput, "generate"}, base...), `unknown field "dir"`},
		{"targets and outputs", append([]string{"-c", both, "generate"}, base...), "either targets or outputs"},
		{"unknown server key", append([]string{"-c", badServer, "generate"}, base...), `unknown field "dir"`},
		{"no target", append([]string{"generate"}, base...), "at least one --target"},
		{"unknown target", append([]string{"generate", "--target", "cobol"}, base...), `unsupported --target "cobol"`},
		{"no endpoint", []string{"generate", "--schema", "s.yaml", "--target", "go"}, "--endpoint is required"},
		{"bad endpoint", []string{"generate", "--schema", "s.yaml", "--target", "go", "--endpoint", "localhost:8080"}, "not an http or https URL"},
		{"bad envelope key", append([]string{"generate", "--target", "go", "--envelope-key", "payload"}, base...), "--envelope-key"},
		{"positional argument", append([]string{"generate", "extra"}, base...), "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			captured := captureGenerate(t)
			err := executeRoot(t, tt.args...)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if tt.name != "positional argument" && !errors.Is(err, ErrUsage) {
				t.Fatalf("expected usage error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
			if *captured != nil {
				t.Fatalf("runner called despite the error")
			}
		})
	}
}
