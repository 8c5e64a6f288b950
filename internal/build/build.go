// Package build holds the values stamped into the binary at link time.
package build

var (
	// Version is the released version of scimctl.
	Version = "dev"

	// Commit is the git commit the binary was built from.
	Commit = "none"

	// Date is the build date.
	Date = "unknown"

	// ProjectName is used as the service name for telemetry and the metrics namespace.
	ProjectName = "scimctl"
)
