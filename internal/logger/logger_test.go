package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew_Verbose(t *testing.T) {
	t.Parallel()
	var quiet, loud bytes.Buffer
	New(&quiet, false).Debug("resolved", "types", 3)
	New(&loud, true).Debug("resolved", "types", 3)
	if quiet.Len() != 0 {
		t.Fatalf("debug line logged without verbose: %q", quiet.String())
	}
	if got := loud.String(); got != "level=DEBUG msg=resolved types=3\n" {
		t.Fatalf("verbose output = %q", got)
	}
}

func TestNew_WarningsAlwaysShown(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	New(&buf, false).Warn("target failed", "target", "swift")
	if !strings.Contains(buf.String(), "target=swift") {
		t.Fatalf("warning missing: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	cases := map[string]Level{"debug": LevelDebug, "INFO": LevelInfo, "warning": LevelWarning, " error ": LevelError}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("want error for unknown level")
	}
}
