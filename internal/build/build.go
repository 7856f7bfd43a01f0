// Package build provides the build information injected at link time.
package build

var (
	// ProjectName is used as the prometheus namespace and the otel service name.
	ProjectName = "scenematch"

	// Version is the semantic version of the binary. Set with -ldflags.
	Version = "dev"

	// Commit is the git commit the binary was built from.
	Commit = "none"

	// Date is the build date in RFC3339.
	Date = "unknown"
)
