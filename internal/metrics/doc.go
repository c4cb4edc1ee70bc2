// Package metrics exposes Prometheus counters and gauges for the watcher:
// alarm lifecycle, tone scheduling, audio availability and detections.
package metrics
