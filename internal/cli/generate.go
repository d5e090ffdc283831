package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/fenlang/fen/internal/driver"
	"github.com/fenlang/fen/internal/emitter"
	"github.com/fenlang/fen/internal/emitter/rustemitter"
	"github.com/fenlang/fen/internal/output"
	"github.com/fenlang/fen/internal/resolver"
	"github.com/fenlang/fen/internal/schema"
	"github.com/fenlang/fen/internal/version"
	"github.com/fenlang/fen/internal/wire"
)

const (
	// DefaultConfigPath is read when --config is not given and the file
	// exists.
	DefaultConfigPath = "fen/fen.yaml"
	DefaultSchemaPath = "fen/schema.yaml"
	defaultOut        = "generated"
)

// OutputConfig is one client to generate.
type OutputConfig struct {
	Target      string
	Path        string
	PackageName string
}

// GenerateConfig captures all inputs that influence the generate command after
// merging defaults, config file values, and CLI overrides.
type GenerateConfig struct {
	Schema       string
	Targets      []string
	Out          string
	PackageName  string
	Endpoint     string
	EndpointProd string
	EnvelopeKey  string
	Outputs      []OutputConfig
	// Server is the config file's server block: server-side types written
	// next to the clients. It defaults to the rust target.
	Server       *OutputConfig
	ConfigPath   string
	LogLevel     string
	DryRun       bool
	Force        bool
	Verbose      bool
}

func defaultGenerateConfig() GenerateConfig {
	return GenerateConfig{Schema: DefaultSchemaPath, EnvelopeKey: wire.DefaultPayloadKey}
}

var generateRunner = runGenerate

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate API clients from a Fen schema",
		Long: "Generate API clients from a Fen schema. " +
			"Options can be provided via flags, a fen.yaml config file, or defaults.",
		Example: strings.TrimSpace(`  fen generate --schema fen/schema.yaml --target swift --out ./Api --endpoint https://api.example.com
  fen generate --target go --target typescript --out ./clients --endpoint http://localhost:8080 --dry-run
  fen --config fen/fen.yaml generate --force`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveGenerateConfig(cmd)
			if err != nil {
				return err
			}
			return generateRunner(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.String("schema", "", "Path or URL to the schema document (default "+DefaultSchemaPath+")")
	flags.StringSlice("target", nil, "Target to emit (go|openapi|python|rust|swift|typescript|npm); repeatable")
	flags.String("out", "", "Output directory; with several targets each writes to <out>/<target>")
	flags.String("package-name", "", "Go package, npm package or Python package name")
	flags.String("endpoint", "", "Base URL the generated clients call by default")
	flags.String("endpoint-prod", "", "Production base URL")
	flags.String("envelope-key", "", "Envelope payload key (value|data); defaults to value")
	flags.Bool("dry-run", false, "Preview planned outputs without writing files")
	flags.Bool("force", false, "Replace an output directory that was not generated by fen")

	return cmd
}

func resolveGenerateConfig(cmd *cobra.Command) (*GenerateConfig, error) {
	cfg := defaultGenerateConfig()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)
	if configPath == "" && !cmd.Flags().Changed("config") {
		if st, err := os.Stat(DefaultConfigPath); err == nil && st.Mode().IsRegular() {
			configPath = DefaultConfigPath
		}
	}
	if configPath != "" {
		cfg.ConfigPath = configPath
		if err := applyGenerateConfigFromFile(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyGenerateFlagOverrides(cmd.Flags(), &cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyGenerateFlagOverrides(flags *pflag.FlagSet, cfg *GenerateConfig) error {
	stringFlags := []struct {
		name string
		dst  *string
	}{
		{"schema", &cfg.Schema},
		{"out", &cfg.Out},
		{"package-name", &cfg.PackageName},
		{"endpoint", &cfg.Endpoint},
		{"endpoint-prod", &cfg.EndpointProd},
		{"envelope-key", &cfg.EnvelopeKey},
		{"log-level", &cfg.LogLevel},
	}
	for _, s := range stringFlags {
		if !flags.Changed(s.name) {
			continue
		}
		value, err := flags.GetString(s.name)
		if err != nil {
			return err
		}
		*s.dst = strings.TrimSpace(value)
	}
	if flags.Changed("target") {
		value, err := flags.GetStringSlice("target")
		if err != nil {
			return err
		}
		// Targets on the command line replace the outputs of the config file.
		cfg.Targets = sanitizeTargets(value)
		cfg.Outputs = nil
		cfg.Server = nil
	}
	boolFlags := []struct {
		name string
		dst  *bool
	}{
		{"dry-run", &cfg.DryRun},
		{"force", &cfg.Force},
		{"verbose", &cfg.Verbose},
	}
	for _, b := range boolFlags {
		if !flags.Changed(b.name) {
			continue
		}
		value, err := flags.GetBool(b.name)
		if err != nil {
			return err
		}
		*b.dst = value
	}

	return nil
}

func (c *GenerateConfig) normalize() {
	c.Schema = strings.TrimSpace(c.Schema)
	c.Out = strings.TrimSpace(c.Out)
	c.PackageName = strings.TrimSpace(c.PackageName)
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	c.EndpointProd = strings.TrimSpace(c.EndpointProd)
	c.EnvelopeKey = strings.TrimSpace(c.EnvelopeKey)
	if c.EnvelopeKey == "" {
		c.EnvelopeKey = wire.DefaultPayloadKey
	}
	c.Targets = sanitizeTargets(c.Targets)

	out := c.Out
	if out == "" {
		out = defaultOut
	}
	if len(c.Outputs) == 0 {
		for _, target := range c.Targets {
			c.Outputs = append(c.Outputs, OutputConfig{Target: target})
		}
		if len(c.Outputs) == 1 && c.Server == nil {
			c.Outputs[0].Path = out
		}
	}
	if c.Server != nil {
		c.Outputs = append(c.Outputs, *c.Server)
		c.Server = nil
	}
	for i := range c.Outputs {
		o := &c.Outputs[i]
		o.Target = strings.ToLower(strings.TrimSpace(o.Target))
		o.Path = strings.TrimSpace(o.Path)
		o.PackageName = strings.TrimSpace(o.PackageName)
		if o.Path == "" {
			o.Path = filepath.Join(out, o.Target)
		}
		if o.PackageName == "" {
			o.PackageName = c.PackageName
		}
	}
}

func (c *GenerateConfig) validate() error {
	if c.Schema == "" {
		return newUsageError("generate: --schema is required (set via flag or config file)")
	}

	registry := driver.DefaultRegistry()
	allowed := strings.Join(registry.Names(), ", ")
	if len(c.Outputs) == 0 {
		return newUsageError(fmt.Sprintf("generate: at least one --target is required (allowed: %s)", allowed))
	}
	for _, o := range c.Outputs {
		if _, ok := registry.Lookup(o.Target); !ok {
			return newUsageError(fmt.Sprintf("generate: unsupported --target %q (allowed: %s, npm)", o.Target, allowed))
		}
	}

	if c.Endpoint == "" {
		return newUsageError("generate: --endpoint is required (set via flag or config file)")
	}
	if err := checkEndpoint(c.Endpoint); err != nil {
		return newUsageError(fmt.Sprintf("generate: --endpoint: %v", err))
	}
	if c.EndpointProd != "" {
		if err := checkEndpoint(c.EndpointProd); err != nil {
			return newUsageError(fmt.Sprintf("generate: --endpoint-prod: %v", err))
		}
	}
	if err := wire.ValidatePayloadKey(c.EnvelopeKey); err != nil {
		return newUsageError(fmt.Sprintf("generate: --envelope-key: %v", err))
	}

	return nil
}

func checkEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an http or https URL", raw)
	}
	return nil
}

func runGenerate(ctx context.Context, cfg *GenerateConfig, stdout, stderr io.Writer) error {
	fmt.Fprintf(stdout, "Running %s v%s...\n", version.Name, version.Version)
	log, err := newLogger(stderr, cfg.Verbose, cfg.LogLevel)
	if err != nil {
		return err
	}

	doc, err := schema.Load(ctx, cfg.Schema)
	if err != nil {
		return schemaLoadError(err)
	}

	req := driver.Request{Document: doc, DryRun: cfg.DryRun, Force: cfg.Force}
	for _, o := range cfg.Outputs {
		req.Targets = append(req.Targets, driver.TargetSpec{
			Target: o.Target,
			OutDir: o.Path,
			Options: emitter.Options{
				PackageName:  o.PackageName,
				Endpoint:     cfg.Endpoint,
				EndpointProd: cfg.EndpointProd,
				PayloadKey:   cfg.EnvelopeKey,
			},
		})
	}

	report, err := driver.New(nil, log).Run(ctx, req)
	if report == nil {
		return newUsageError(fmt.Sprintf("generate: %v", err))
	}
	var schemaErrs resolver.SchemaErrors
	if errors.As(err, &schemaErrs) {
		return newUsageError(fmt.Sprintf("schema %s: %v", cfg.Schema, schemaErrs))
	}

	for _, tr := range report.Targets {
		absOut := tr.OutDir
		if ap, err := filepath.Abs(tr.OutDir); err == nil {
			absOut = ap
		}
		switch tr.State {
		case driver.StatePlanned:
			printPlan(stdout, absOut, tr.Files)
		case driver.StateWritten:
			fmt.Fprintf(stdout, "Generated %s client in %s (%d files)\n", tr.Target, absOut, len(tr.Files))
		case driver.StateFailed:
			fmt.Fprintf(stdout, "Failed to generate %s client in %s\n", tr.Target, absOut)
		}
	}
	if err != nil {
		return wrapOutputError(err)
	}
	return nil
}

func schemaLoadError(err error) error {
	var le *schema.LoadError
	if errors.As(err, &le) {
		msg := le.Message
		if le.Location != "" && !strings.Contains(msg, le.Location) {
			msg = fmt.Sprintf("%s\nLocation: %s", msg, le.Location)
		}
		return newUsageError(msg)
	}
	return err
}

func printPlan(w io.Writer, outDir string, files []output.PlannedFile) {
	fmt.Fprintf(w, "Planned writes to %s (%d files):\n", outDir, len(files))
	for _, f := range files {
		fmt.Fprintf(w, "- %s\n", f.RelPath)
	}
}

// wrapOutputError adds a hint to the write failures a user can fix.
func wrapOutputError(err error) error {
	switch {
	case errors.Is(err, output.ErrNotOwned):
		return withHint(err, "choose a different --out or use --force to replace the directory.")
	case errors.Is(err, fs.ErrPermission):
		return withHint(err, "choose a different --out or check directory permissions.")
	}
	return err
}

func sanitizeTargets(targets []string) []string {
	if len(targets) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(targets))
	result := make([]string, 0, len(targets))
	for _, target := range targets {
		trimmed := strings.ToLower(strings.TrimSpace(target))
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func applyGenerateConfigFromFile(cfg *GenerateConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return newUsageError(fmt.Sprintf("read config file %q: %v", path, err))
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return newUsageError(fmt.Sprintf("parse config file %q: %v", path, err))
	}

	for key, value := range raw {
		fieldErr := func(err error) error {
			return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
		}
		var err error
		switch normalizeKey(key) {
		case "schema":
			cfg.Schema, err = valueAsString(value)
		case "target", "targets":
			var list []string
			list, err = valueAsStringSlice(value)
			cfg.Targets = sanitizeTargets(list)
		case "out":
			cfg.Out, err = valueAsString(value)
		case "packagename":
			cfg.PackageName, err = valueAsString(value)
		case "endpoint", "endpointdev":
			cfg.Endpoint, err = valueAsString(value)
		case "endpointprod":
			cfg.EndpointProd, err = valueAsString(value)
		case "envelopekey":
			cfg.EnvelopeKey, err = valueAsString(value)
		case "outputs":
			cfg.Outputs, err = valueAsOutputs(value)
		case "server":
			cfg.Server, err = valueAsServer(value)
		case "loglevel":
			cfg.LogLevel, err = valueAsString(value)
		case "dryrun":
			cfg.DryRun, err = valueAsBool(value)
		case "force":
			cfg.Force, err = valueAsBool(value)
		case "verbose":
			cfg.Verbose, err = valueAsBool(value)
		default:
			return newUsageError(fmt.Sprintf("config file %q: unknown field %q", path, key))
		}
		if err != nil {
			return fieldErr(err)
		}
	}
	if len(cfg.Targets) > 0 && len(cfg.Outputs) > 0 {
		return newUsageError(fmt.Sprintf("config file %q: set either targets or outputs, not both", path))
	}

	return nil
}

func valueAsOutputs(v any) ([]OutputConfig, error) {
	list, ok := v.([]any)
	if !ok {
		if v == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("expected list, got %T", v)
	}
	outputs := make([]OutputConfig, 0, len(list))
	for idx, elem := range list {
		m, ok := elem.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("element %d: expected mapping, got %T", idx, elem)
		}
		var o OutputConfig
		for key, value := range m {
			var err error
			switch normalizeKey(key) {
			case "target", "language":
				o.Target, err = valueAsString(value)
			case "path":
				o.Path, err = valueAsString(value)
			case "packagename":
				o.PackageName, err = valueAsString(value)
			default:
				return nil, fmt.Errorf("element %d: unknown field %q", idx, key)
			}
			if err != nil {
				return nil, fmt.Errorf("element %d field %q: %w", idx, key, err)
			}
		}
		if o.Target == "" {
			return nil, fmt.Errorf("element %d: target is required", idx)
		}
		outputs = append(outputs, o)
	}
	return outputs, nil
}

// valueAsServer reads the server block: a mapping of path and an optional
// target, which defaults to rust.
func valueAsServer(v any) (*OutputConfig, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected mapping, got %T", v)
	}
	o := &OutputConfig{Target: rustemitter.TargetName}
	for key, value := range m {
		var err error
		switch normalizeKey(key) {
		case "target", "language":
			o.Target, err = valueAsString(value)
		case "path", "output":
			o.Path, err = valueAsString(value)
		default:
			return nil, fmt.Errorf("unknown field %q", key)
		}
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
	}
	if o.Target == "" {
		o.Target = rustemitter.TargetName
	}
	return o, nil
}

func normalizeKey(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	lowered = strings.ReplaceAll(lowered, "-", "")
	lowered = strings.ReplaceAll(lowered, "_", "")
	return lowered
}

func valueAsString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func valueAsStringSlice(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, nil
		}
		return splitAndTrim(val), nil
	case []any:
		items := make([]string, 0, len(val))
		for idx, elem := range val {
			str, err := valueAsString(elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", idx, err)
			}
			if str != "" {
				items = append(items, str)
			}
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected string or list, got %T", v)
	}
}

func valueAsBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		trimmed := strings.ToLower(strings.TrimSpace(val))
		switch trimmed {
		case "true", "t", "1", "yes", "y":
			return true, nil
		case "false", "f", "0", "no", "n":
			return false, nil
		case "":
			return false, nil
		default:
			return false, fmt.Errorf("invalid boolean value %q", val)
		}
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}
