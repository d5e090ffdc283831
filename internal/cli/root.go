package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fenlang/fen/internal/logger"
)

// Execute runs the fen CLI until ctx is cancelled.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd constructs the root command so tests can exercise the CLI easily.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fen",
		Short: "Generate typed API clients from a Fen schema",
		Long: "fen reads a schema of structs, enums and endpoints and generates matching " +
			"clients for Swift, TypeScript, Go and Python, plus an OpenAPI description.",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	// Convert Cobra flag errors (like unknown flags) into friendly usage errors
	// that also show the command's help text.
	flagErr := func(c *cobra.Command, err error) error {
		return newUsageError(fmt.Sprintf("%v\n\n%s", err, c.UsageString()))
	}
	cmd.SetFlagErrorFunc(flagErr)

	cmd.PersistentFlags().StringP("config", "c", "", "Config file path (default "+DefaultConfigPath+" when present)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging output")
	cmd.PersistentFlags().String("log-level", "", "Log level (debug|info|warn|error); overrides --verbose")

	for _, sub := range []*cobra.Command{newGenerateCmd(), newInitCmd(), newCheckCmd(), newVersionCmd()} {
		sub.SetFlagErrorFunc(flagErr)
		cmd.AddCommand(sub)
	}

	return cmd
}

// newLogger builds the stderr logger; an explicit level wins over verbose.
func newLogger(w io.Writer, verbose bool, level string) (*slog.Logger, error) {
	if strings.TrimSpace(level) == "" {
		return logger.New(w, verbose), nil
	}
	lvl, err := logger.ParseLevel(level)
	if err != nil {
		return nil, newUsageError(fmt.Sprintf("--log-level: %v", err))
	}
	return logger.NewWithLevel(w, lvl), nil
}
