// Package version identifies the generator in CLI output and in the
// header of every emitted file.
package version

import (
	"runtime/debug"
	"strings"
)

// Name is the generator name written into file headers.
const Name = "Fen"

// Set via -ldflags "-X github.com/fenlang/fen/internal/version.Version=...".
var (
	Version = "0.6.0"
	Commit  = "unknown"
	Date    = "unknown"
)

// String formats a version line such as "Fen v0.6.0 (abc123) 2025-03-05".
// Commit and date fall back to the VCS stamp of the build when they were
// not injected.
func String() string {
	return format(Version, Commit, Date, readBuildInfo())
}

func format(version, commit, date string, info *debug.BuildInfo) string {
	v := strings.TrimPrefix(strings.TrimSpace(version), "v")
	c := strings.TrimSpace(commit)
	d := strings.TrimSpace(date)
	if c == "" || c == "unknown" {
		c = buildSetting(info, "vcs.revision")
	}
	if d == "" || d == "unknown" {
		d = buildSetting(info, "vcs.time")
	}
	if v == "" {
		v = "dev"
	}
	out := Name + " v" + v
	if c != "" {
		if len(c) > 12 {
			c = c[:12]
		}
		out += " (" + c + ")"
	}
	if d != "" {
		out += " " + d
	}
	return out
}

func readBuildInfo() *debug.BuildInfo {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	return info
}

func buildSetting(info *debug.BuildInfo, key string) string {
	if info == nil {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}
