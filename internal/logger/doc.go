// Package logger wraps zap for every sleepwatch binary.
//
// A global sugared logger writes console or JSON lines to stderr at a shared
// atomic level. Services carry a named logger in their context and log
// through the package helpers (InfoKV, WarnKV and friends).
package logger
