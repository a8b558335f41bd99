// Package version holds build information for the bridge binaries.
// Values are injected with ldflags:
//
//	go build -ldflags "-X github.com/and2long/tcm/bridge/internal/version.Version=1.2.0 \
//	                   -X github.com/and2long/tcm/bridge/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

var (
	// Version is the semantic version, "dev" for local builds.
	Version = "dev"

	// Commit is the git commit the binary was built from.
	Commit = "unknown"

	// BuildTime is the RFC3339 build timestamp.
	BuildTime = "unknown"
)

// Info returns a one-line description for the named binary.
func Info(binary string) string {
	return binary + " " + Version + " (commit: " + Commit + ", built: " + BuildTime + ")"
}
