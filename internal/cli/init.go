package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// InitConfig captures the options for the init command.
type InitConfig struct {
	OutputPath string
	// SchemaPath receives a starter schema unless it already exists.
	SchemaPath string
	Force      bool
	Verbose    bool
}

var initRunner = runInit

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a fen.yaml config file and a starter schema",
		Long:  "Scaffold a commented fen.yaml configuration file that documents available options, and a starter schema next to it.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return err
			}
			schemaPath, err := cmd.Flags().GetString("schema")
			if err != nil {
				return err
			}
			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return err
			}
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			cfg := &InitConfig{
				OutputPath: out,
				SchemaPath: schemaPath,
				Force:      force,
				Verbose:    verbose,
			}
			return initRunner(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().String("out", DefaultConfigPath, "Where to write the sample config file")
	cmd.Flags().String("schema", "", "Where to write the starter schema (default: schema.yaml next to the config); \"-\" skips it")
	cmd.Flags().Bool("force", false, "Overwrite the config file if it already exists")

	return cmd
}

func runInit(ctx context.Context, cfg *InitConfig, stdout io.Writer) error {
	_ = ctx

	out := strings.TrimSpace(cfg.OutputPath)
	if out == "" {
		out = DefaultConfigPath
	}
	absPath, err := filepath.Abs(out)
	if err != nil {
		return fmt.Errorf("init: resolve output path: %w", err)
	}

	if st, err := os.Stat(absPath); err == nil && !cfg.Force {
		if st.Mode().IsRegular() {
			return newUsageError(fmt.Sprintf("init: %q already exists (use --force to overwrite)", absPath))
		}
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot create parent directory: %v", err))
	}

	if err := writeAtomic(absPath, strings.TrimSpace(sampleConfigYAML)+"\n"); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote sample config to %s\n", absPath)

	schemaPath := strings.TrimSpace(cfg.SchemaPath)
	if schemaPath == "-" {
		return nil
	}
	if schemaPath == "" {
		schemaPath = filepath.Join(filepath.Dir(absPath), "schema.yaml")
	}
	// An existing schema is never replaced, even with --force.
	if _, err := os.Stat(schemaPath); err == nil {
		if cfg.Verbose {
			fmt.Fprintf(stdout, "Kept existing schema %s\n", schemaPath)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(schemaPath), 0o755); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot create schema directory: %v", err))
	}
	if err := writeAtomic(schemaPath, strings.TrimSpace(sampleSchemaYAML)+"\n"); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote starter schema to %s\n", schemaPath)
	return nil
}

// writeAtomic writes via temp + rename.
func writeAtomic(path, content string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return withHint(fmt.Errorf("init: cannot write temp file: %w", err), "choose a different --out or check directory permissions.")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return newUsageError(fmt.Sprintf("init: cannot place file at %s: %v", path, err))
	}
	return nil
}

// sampleConfigYAML is a commented example config documenting available options.
const sampleConfigYAML = `# Fen configuration (YAML)
# Command-line flags override config values. Paths are relative to the
# directory fen runs in.

# Path or URL to the schema document (http/https or local file).
schema: fen/schema.yaml

# Base URL the generated clients call by default (required).
endpoint: http://localhost:8080

# Optional production base URL.
# endpointProd: https://api.example.com

# Envelope and enum payload key: value (default) or data for servers
# built against older generators.
# envelopeKey: value

# Clients to generate. target is one of go, openapi, python, rust, swift
# or typescript (npm is accepted as an alias). path defaults to
# <out>/<target>; packageName defaults to a name derived from the schema.
outputs:
  - target: swift
    path: ./Api
  # - target: typescript
  #   path: ./web/src/api
  #   packageName: "@acme/api"
  # - target: go
  #   path: ./internal/apiclient
  #   packageName: apiclient

# Server-side serde types for a Rust backend, written as a module.
# server:
#   path: ./server/src/fen

# Base directory for outputs without a path.
# out: ./generated

# Preview planned outputs without writing files.
# dryRun: false

# Replace an output directory that was not generated by fen.
# force: false

# Enable verbose logging.
# verbose: false
`

// sampleSchemaYAML is the starter schema written by init.
const sampleSchemaYAML = `name: Todos
version: 0.1.0
description: A starter schema. Replace it with your own types and endpoints.

types:
  - struct: Todo
    description: A thing to do.
    fields:
      - { name: id, type: Uuid }
      - { name: title, type: String }
      - { name: is_completed, type: Bool }
      - { name: due, type: Date, optional: true }
      - { name: priority, type: Priority }

  - enum: Priority
    variants:
      - low
      - high
      - { tag: custom, payload: Int }

  - struct: NewTodo
    fields:
      - { name: title, type: String }
      - { name: priority, type: Priority }

endpoints:
  - { name: GetTodos, output: "[Todo]", auth: true }
  - { name: CreateTodo, input: NewTodo, output: Todo, auth: true }
`
