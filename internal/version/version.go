// Package version holds build-time identifying strings, normally
// overridden via -ldflags at build time.
package version

var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)
