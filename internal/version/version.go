// Package version carries the release version printed by `markbind --version`.
package version

// Version is set at release time:
// go build -ldflags "-X github.com/MarkBind/markbind-sub000/internal/version.Version=v6.0.0".
var Version = "dev"

// Build metadata, also set through ldflags.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String returns the version with the commit when known.
func String() string {
	if GitCommit == "unknown" || GitCommit == "" {
		return Version
	}
	return Version + " (" + GitCommit + ")"
}
