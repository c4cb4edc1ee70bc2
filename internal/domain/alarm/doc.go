// Package alarm contains core domain types describing the alarm signal.
//
// It defines Actor (who stopped the alarm or asked for a test tone) and State
// (the engine's status at a point in time) with Clone helpers to avoid leaking
// internal references.
package alarm
