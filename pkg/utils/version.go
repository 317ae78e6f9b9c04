// Package utils provides bespoke, one off utils that don't make sense to be
// their own package
package utils

import "fmt"

// Set at build time with -ldflags.
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)

// BuildInfo is the stamped build identity.
type BuildInfo struct {
	Version   string `json:"version"`
	Sha       string `json:"sha"`
	Buildtime string `json:"built_at"`
}

// Build returns the values stamped into this binary.
func Build() BuildInfo {
	return BuildInfo{Version: Version, Sha: Sha, Buildtime: Buildtime}
}

// String is the single line serve logs at startup.
func (b BuildInfo) String() string {
	return fmt.Sprintf("ephemera %s (%s, built %s)", b.Version, b.Sha, b.Buildtime)
}
