// Package version provides version information for tua-storage.
package version

// Version is the version of `tuastorage` and `tuastoraged`.
// Set to "dev" by default for local builds.
// Overridden at link time with -ldflags "-X .../internal/version.version=...".
var version = "dev"

// Get returns the version of `tuastorage` and `tuastoraged`.
func Get() string {
	return version
}

// UserAgent returns the User-Agent sent to origin services.
func UserAgent() string {
	return "tua-storage/" + version
}
