// SPDX-License-Identifier: MIT
//
// Package build exposes metadata injected at compile time via linker
// flags: application name, build timestamp, Git commit and semantic
// version. Development builds that were not linked with -ldflags fall
// back to "dev" placeholders instead of failing.
package build

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Populated by -ldflags at build time, for example:
//
//	go build -ldflags "-X beatscope/pkg/build.buildName=beatscope -X beatscope/pkg/build.buildVersion=0.2.0"
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
)

var buildFlags = &ldFlags{
	Name:        "beatscope",
	Description: "Real-time audio feature extraction engine",
	Time:        "unknown",
	Commit:      "unknown",
	Version:     "dev",
}

// Initialize copies any ldflags values that were provided into the
// buildFlags struct. Missing values keep their development defaults.
func Initialize() {
	if buildName != "" {
		buildFlags.Name = buildName
	}
	if buildTime != "" {
		buildFlags.Time = buildTime
	}
	if buildCommit != "" {
		buildFlags.Commit = buildCommit
	}
	if buildVersion != "" {
		buildFlags.Version = buildVersion
	}
}

// GetBuildFlags returns the current build information. Safe to call
// before Initialize; values are then the development defaults.
func GetBuildFlags() *ldFlags {
	return buildFlags
}
