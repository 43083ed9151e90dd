// Package version reports build information of the runner binary.
//
// Values are set at build time with ldflags:
//
//	go build -ldflags "\
//	  -X github.com/ncobase/runner/version.Version=1.2.3 \
//	  -X github.com/ncobase/runner/version.Branch=main \
//	  -X github.com/ncobase/runner/version.Revision=abc123 \
//	  -X 'github.com/ncobase/runner/version.BuiltAt=$(date)'"
//
// Unset values fall back to the VCS stamp embedded by the Go toolchain.
package version
