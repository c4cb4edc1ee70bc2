// Package audio defines the real-time audio graph used by the alarm engine.
//
// A Backend opens a Context, the process-wide handle on an output device.
// The Context owns a monotonic clock and accepts declaratively scheduled
// Tones: an oscillator at a fixed frequency routed through a gain envelope.
// Each scheduled tone is returned as a Voice that can be stopped early and
// signals natural completion through its Done channel.
package audio
