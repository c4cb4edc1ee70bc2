// Package web serves the watcher's local HTTP surface: a JSON status and
// control API, a WebSocket stream of detection and alarm events, health and
// Prometheus metrics endpoints.
package web
