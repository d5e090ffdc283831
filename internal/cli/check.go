package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fenlang/fen/internal/resolver"
	"github.com/fenlang/fen/internal/schema"
	"github.com/fenlang/fen/internal/wire"
)

// CheckConfig captures the options for the check command.
type CheckConfig struct {
	Schema      string
	Type        string
	Input       string // file path, or "-" for stdin
	EnvelopeKey string
	Response    bool
}

var checkRunner = runCheck

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [payload.json|-]",
		Short: "Decode a JSON payload against a schema type",
		Long: "Decode a JSON payload with the reference wire codec and report the first " +
			"protocol error. With --response the payload is read as an endpoint response envelope.",
		Example: strings.TrimSpace(`  fen check --schema fen/schema.yaml --type Todo todo.json
  curl -s localhost:8080/_fen_/get-todos | fen check --type "[Todo]" --response -`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := &CheckConfig{Input: "-"}
			if len(args) == 1 {
				cfg.Input = args[0]
			}
			var err error
			if cfg.Schema, err = cmd.Flags().GetString("schema"); err != nil {
				return err
			}
			if cfg.Type, err = cmd.Flags().GetString("type"); err != nil {
				return err
			}
			if cfg.EnvelopeKey, err = cmd.Flags().GetString("envelope-key"); err != nil {
				return err
			}
			if cfg.Response, err = cmd.Flags().GetBool("response"); err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Type) == "" {
				return newUsageError("check: --type is required")
			}
			if err := wire.ValidatePayloadKey(cfg.EnvelopeKey); err != nil {
				return newUsageError(fmt.Sprintf("check: --envelope-key: %v", err))
			}
			return checkRunner(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().String("schema", DefaultSchemaPath, "Path or URL to the schema document")
	cmd.Flags().String("type", "", "Type expression of the payload, e.g. Todo or \"[Todo]\"")
	cmd.Flags().Bool("response", false, "Treat the payload as a response envelope around --type")
	cmd.Flags().String("envelope-key", wire.DefaultPayloadKey, "Envelope payload key (value|data)")

	return cmd
}

func runCheck(ctx context.Context, cfg *CheckConfig, stdin io.Reader, stdout io.Writer) error {
	doc, err := schema.Load(ctx, cfg.Schema)
	if err != nil {
		return schemaLoadError(err)
	}
	rs, err := resolver.Resolve(doc)
	if err != nil {
		return newUsageError(fmt.Sprintf("schema %s: %v", cfg.Schema, err))
	}
	ref, err := schema.ParseTypeRef(cfg.Type)
	if err != nil {
		return newUsageError(fmt.Sprintf("check: --type: %v", err))
	}
	if err := checkTypeRef(rs, ref); err != nil {
		return err
	}

	data, err := readPayload(cfg.Input, stdin)
	if err != nil {
		return err
	}

	codec := wire.NewCodec(rs, wire.Protocol{PayloadKey: cfg.EnvelopeKey})
	if cfg.Response {
		resp, err := codec.DecodeResponse(ref, data)
		if err != nil {
			return fmt.Errorf("payload is not a valid Response<%s>: %w", ref, err)
		}
		if !resp.OK() {
			fmt.Fprintf(stdout, "ok: failure envelope (status %d): %s\n", resp.Failure.Status, resp.Failure.Message)
			return nil
		}
		fmt.Fprintf(stdout, "ok: success envelope around %s\n", ref)
		return nil
	}
	if _, err := codec.Decode(ref, data); err != nil {
		return fmt.Errorf("payload is not a valid %s: %w", ref, err)
	}
	fmt.Fprintf(stdout, "ok: payload is a valid %s\n", ref)
	return nil
}

// checkTypeRef rejects names the schema does not declare.
func checkTypeRef(rs *resolver.ResolvedSchema, ref schema.TypeRef) error {
	var errs []error
	schema.Walk(ref, func(r schema.TypeRef) bool {
		switch t := r.(type) {
		case schema.Named:
			if _, ok := rs.Type(t.Name); !ok {
				errs = append(errs, fmt.Errorf("unknown type %q", t.Name))
			}
		case schema.Generic:
			if _, ok := schema.IsResponse(t); !ok {
				errs = append(errs, fmt.Errorf("unknown generic %s", t))
				return false
			}
		}
		return true
	})
	if len(errs) > 0 {
		return newUsageError(fmt.Sprintf("check: --type %q: %v", ref, errors.Join(errs...)))
	}
	return nil
}

func readPayload(input string, stdin io.Reader) ([]byte, error) {
	if input == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read payload from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return nil, newUsageError(fmt.Sprintf("check: read payload %q: %v", input, err))
	}
	return data, nil
}
