// Package version reports the kpiq build version, embedded from
// version.txt at compile time.
package version

import (
	_ "embed"
	"strings"
)

//go:embed version.txt
var versionFile string

// Version is the current version of kpiq.
var Version = strings.TrimSpace(versionFile)

// String returns the version string.
func String() string {
	return Version
}

// Full returns the version prefixed with the program name.
func Full() string {
	return "kpiq version " + Version
}
