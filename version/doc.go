// Package version reports the build of the gustav binary.
//
// Version and commit are set at link time and fall back to the VCS stamp
// the Go toolchain embeds:
//
//	go build -ldflags "-X github.com/gustavlms/gustav/version.Version=1.4.0" ./cmd/gustav
package version
