// Package version reports build version information. The variables can be
// overridden at build time:
//
//	go build -ldflags "-X github.com/ThomasConway01/OutfitMatcher/version.version=1.0.0"
package version

import (
	"fmt"
	"runtime/debug"
)

const devVersion = "dev"

var (
	version   = devVersion
	gitCommit = ""
)

// Version returns the build version, falling back to module build info when
// no ldflags value was set.
func Version() string {
	if version != devVersion {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return devVersion
}

// Commit returns the git commit hash, read from VCS build info when no
// ldflags value was set. Empty when unknown.
func Commit() string {
	if gitCommit != "" {
		return gitCommit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			return setting.Value
		}
	}
	return ""
}

// String returns a human-readable version line.
func String() string {
	if commit := Commit(); commit != "" {
		short := commit
		if len(short) > 7 {
			short = short[:7]
		}
		return fmt.Sprintf("outfitmatcher %s (%s)", Version(), short)
	}
	return "outfitmatcher " + Version()
}
