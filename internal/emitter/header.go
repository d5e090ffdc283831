package emitter

import (
	"fmt"
	"strings"
	"time"
)

// Stamp identifies the generator run written into every unit header.
type Stamp struct {
	Generator string // e.g. "Fen"
	Version   string // e.g. "0.6.0"
	Time      time.Time
}

// Tool returns "Fen v0.6.0".
func (s Stamp) Tool() string {
	return fmt.Sprintf("%s v%s", s.Generator, strings.TrimPrefix(s.Version, "v"))
}

// Timestamp returns the generation time as "13:10:09 on 2025-03-05" (UTC).
func (s Stamp) Timestamp() string {
	return s.Time.UTC().Format("15:04:05 on 2006-01-02")
}

// Lines returns the two header lines without comment markers.
func (s Stamp) Lines() []string {
	return []string{
		fmt.Sprintf("Created by %s at %s", s.Tool(), s.Timestamp()),
		"Do not manually modify this file as it is automatically generated",
	}
}

// Header renders the header lines behind a line comment prefix such as
// "//" or "#", followed by a blank line.
func Header(prefix string, s Stamp) string {
	var b strings.Builder
	for _, line := range s.Lines() {
		b.WriteString(prefix)
		b.WriteByte(' ')
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}
