// Package version holds build information, set at link time with
// -ldflags "-X github.com/MrSnakeDoc/marks/internal/version.Version=...".
package version

import "runtime"

var (
	Version   = "dev"             // ex: v0.1.0
	Commit    = "none"            // ex: abcd123
	BuildDate = "unknown"         // ex: 2026-10-15T18:42:00Z
	GoVersion = runtime.Version() // go version
)
