// Package version holds build identification for titankv, set at build time
// via -ldflags.
package version

// Version is the current titankv version.
// Override at build time: go build -ldflags "-X github.com/flashdb/titankv/internal/version.Version=0.2.0"
var Version = "0.1.0"

// BuildTime is the build timestamp.
// Override at build time: go build -ldflags "-X github.com/flashdb/titankv/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var BuildTime = "unknown"

// String renders the version for logs.
func String() string {
	return Version + " (built " + BuildTime + ")"
}
