// Package version carries build identification, overridden at link time:
//
//	go build -ldflags "-X .../internal/version.Version=v1.2.0"
package version

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String renders the version with its git SHA for logs.
func String() string {
	return Version + " (" + GitSHA + ")"
}
