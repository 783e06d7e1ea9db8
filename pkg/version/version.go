// Package version reports build information for ragingest.
package version

import (
	"fmt"
	"runtime"
)

// Build information, injected with
// -ldflags "-X github.com/Aman-CERP/ragingest/pkg/version.Version=..."
var (
	Version = "dev"
	Commit  = "unknown"
	// Date is the build time in RFC3339.
	Date = "unknown"

	GoVersion = runtime.Version()
)

// BuildInfo is the JSON form of the build information.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// String returns the one-line description printed by `ragingest version`.
func String() string {
	return fmt.Sprintf("ragingest %s (commit: %s, built: %s, go: %s, %s/%s)",
		Version, Commit, Date, GoVersion, runtime.GOOS, runtime.GOARCH)
}

// Short returns the bare version.
func Short() string {
	return Version
}

// GetInfo returns the build information.
func GetInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}
