// Package version reports the build identity shown by `escalator --version`.
package version

import (
	"fmt"
	"runtime/debug"
)

// These variables are set at build time via ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns the version line. Without ldflags the commit comes from
// the VCS stamp the Go toolchain embeds.
func String() string {
	return fmt.Sprintf("escalator %s (commit: %s, built: %s)", Version, shortCommit(commit()), BuildTime)
}

func commit() string {
	if Commit != "unknown" {
		return Commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Commit
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return Commit
}

func shortCommit(c string) string {
	if len(c) > 7 {
		return c[:7]
	}
	return c
}
