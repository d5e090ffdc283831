package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/fenlang/fen/internal/output"
)

func TestWrapOutputError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		err   error
		cause error
		hint  string
	}{
		{"not owned", fmt.Errorf("write out: %w", output.ErrNotOwned), output.ErrNotOwned, "--force"},
		{"permission", fmt.Errorf("write out: %w", fs.ErrPermission), fs.ErrPermission, "permissions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := wrapOutputError(tt.err)
			if !errors.Is(err, ErrUsage) || !errors.Is(err, tt.cause) {
				t.Fatalf("want a usage error wrapping %v, got %v", tt.cause, err)
			}
			msg := err.Error()
			if !strings.HasPrefix(msg, tt.err.Error()+"\nHint: ") || !strings.Contains(msg, tt.hint) {
				t.Fatalf("unexpected message %q", msg)
			}
		})
	}

	other := errors.New("disk full")
	if got := wrapOutputError(other); got != other || errors.Is(got, ErrUsage) {
		t.Fatalf("other errors pass through unchanged, got %v", got)
	}
}

func TestUsageErrorText(t *testing.T) {
	t.Parallel()
	err := newUsageError("generate: --schema is required")
	if err.Error() != "generate: --schema is required" || !errors.Is(err, ErrUsage) {
		t.Fatalf("unexpected usage error %v", err)
	}
	if ErrUsage.Error() != "invalid fen invocation" {
		t.Fatalf("ErrUsage = %q", ErrUsage)
	}
}
