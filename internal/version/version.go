// Package version holds the release version shared by both binaries.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION.txt
var versionFile string

// Version is the release version, e.g. "0.1.0".
var Version = strings.TrimSpace(versionFile)
