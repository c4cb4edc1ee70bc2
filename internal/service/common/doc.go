// Package common holds helpers shared by the command-line tools.
//
// It provides a lightweight gRPC client for the watcher's control endpoint
// with per-call timeouts and a helper that detects the current system actor
// (hostname/username) for audit purposes.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
