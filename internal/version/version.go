// Package appversion provides build version information.
//
// Release builds inject the variables via ldflags:
//
//	-ldflags="-X github.com/dantte-lp/vdabridge/internal/version.Version=v1.0.0
//	          -X github.com/dantte-lp/vdabridge/internal/version.GitCommit=abc1234
//	          -X github.com/dantte-lp/vdabridge/internal/version.BuildDate=2026-02-22T12:00:00Z"
//
// Variables left at their defaults are backfilled from the module build
// info the toolchain stamps into the binary, so a plain `go build` still
// reports a usable commit and build time.
package appversion

import (
	"fmt"
	"runtime/debug"
)

// Version is the semantic version (e.g., "v0.1.0" or "dev").
var Version = "dev"

// GitCommit is the short git commit hash at build time.
var GitCommit = "unknown"

// BuildDate is the RFC 3339 build timestamp.
var BuildDate = "unknown"

// shortHashLen truncates vcs revisions to the customary short form.
const shortHashLen = 7

func init() {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	if Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		Version = bi.Main.Version
	}

	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if GitCommit == "unknown" && len(s.Value) >= shortHashLen {
				GitCommit = s.Value[:shortHashLen]
			}
		case "vcs.time":
			if BuildDate == "unknown" && s.Value != "" {
				BuildDate = s.Value
			}
		}
	}
}

// Full returns a human-readable multi-line version string.
func Full(binary string) string {
	return fmt.Sprintf("%s %s\n  commit:  %s\n  built:   %s", binary, Version, GitCommit, BuildDate)
}
