// SPDX-License-Identifier: MIT
//
// Package build carries the version metadata stamped into the binary with
// linker flags:
//
//	go build -ldflags "-X eqplayer/pkg/build.buildName=eqplayer \
//	  -X eqplayer/pkg/build.buildVersion=0.1.0 \
//	  -X eqplayer/pkg/build.buildCommit=$(git rev-parse --short HEAD) \
//	  -X eqplayer/pkg/build.buildTime=$(date -u +%FT%TZ)"
//
// Development builds run without them and report "unknown".
package build

import "fmt"

// Info describes the running binary.
type Info struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

// String formats the info for --version output.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

// Set by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
)

var buildFlags = &Info{
	Name:    "eqplayer",
	Time:    "unknown",
	Commit:  "unknown",
	Version: "unknown",
}

// Initialize copies the linker values into the build info. It fails on the
// first missing value and leaves the defaults in place, so callers may
// treat the error as a warning for development builds.
func Initialize() error {
	required := []struct {
		name  string
		value string
	}{
		{"BuildName", buildName},
		{"BuildTime", buildTime},
		{"BuildCommit", buildCommit},
		{"BuildVersion", buildVersion},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion
	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *Info {
	return buildFlags
}
