// Package version provides the build version of the module.
package version

import "fmt"

const (
	major = 0
	minor = 1
	patch = 0
)

// Populated at build time via -ldflags.
var (
	build  = "dev"
	commit = ""
)

// Version describes the release version.
type Version struct {
	Major  int
	Minor  int
	Patch  int
	Build  string
	Commit string
}

// Current returns the version of the running binary.
func Current() Version {
	return Version{
		Major:  major,
		Minor:  minor,
		Patch:  patch,
		Build:  build,
		Commit: commit,
	}
}

// String returns the semver representation.
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Build != "" {
		s += "-" + v.Build
	}
	return s
}
