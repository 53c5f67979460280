// Package version holds the build-time version of the oosp binaries.
package version

// Version is the symbolic version of the running code. It is overridden at
// build time with:
//
//	go build -ldflags "-X github.com/m-lab/oosp/pkg/version.Version=v1.2.3"
var Version = "(undefined)"
