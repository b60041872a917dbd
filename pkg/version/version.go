// Package version provides build and version information for SearchKit.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Name is the program name used in version output.
const Name = "searchkit"

// Build information, set via ldflags:
//
//	-X github.com/Aman-CERP/searchkit/pkg/version.Version=v1.2.3
//	-X github.com/Aman-CERP/searchkit/pkg/version.Commit=abc1234
//	-X github.com/Aman-CERP/searchkit/pkg/version.Date=2026-01-02T15:04:05Z
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// BuildInfo is structured version information for JSON output.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// String returns the full one-line version.
func String() string {
	info := GetInfo()
	return fmt.Sprintf("%s %s (commit: %s, built: %s, go: %s)",
		Name, info.Version, info.Commit, info.Date, info.GoVersion)
}

// Short returns just the version string.
func Short() string {
	return Version
}

// GetInfo returns structured version information. Commit and date fall
// back to the VCS stamp of `go build` when ldflags did not set them.
func GetInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && info.Commit == "unknown" && s.Value != "":
			info.Commit = s.Value[:min(7, len(s.Value))]
		case s.Key == "vcs.time" && info.Date == "unknown" && s.Value != "":
			info.Date = s.Value
		}
	}
	return info
}
