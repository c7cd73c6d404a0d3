// Package version exposes build metadata for opus-provision.
//
// Variables Version, Commit, and BuildTime are injected at build time via
// Go ldflags and default to sensible values for local builds. The same data
// identifies the tool in HTTP requests and in the provenance stamp.
package version
