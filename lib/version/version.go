// Package version names the build.
package version

// Version is overridden with the release tag at build time.
var Version = "v0.2.0-HEAD"
