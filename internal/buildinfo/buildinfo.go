// Package buildinfo holds build-time variables injected via ldflags.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/go-ports/contextmgr/internal/buildinfo.Version=...".
var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

// ResolvedVersion returns Version, falling back to the module version that
// `go install module@version` records when no ldflags were given.
func ResolvedVersion() string {
	if Version != "dev" {
		return Version
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return Version
}

// String is the one-line summary printed by `contextmgr version`.
func String() string {
	return fmt.Sprintf("contextmgr %s (commit %s, branch %s, built %s)", ResolvedVersion(), GitCommit, GitBranch, BuildDate)
}
