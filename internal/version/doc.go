// Package version carries the sleepwatch build metadata.
//
// Version, Commit and BuildTime are set through -ldflags at build time. The
// helpers render them for the version subcommand, startup logs and the
// User-Agent of outgoing requests.
package version
