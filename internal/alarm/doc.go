// Package alarm implements the alarm-signal engine: a looping, interruptible
// two-tone alert rendered through an audio.Context.
//
// The Engine owns a lazily opened audio context, schedules the fixed alarm
// pattern on the audio clock and repeats it every PatternInterval until Stop.
// Every public method is safe for concurrent use, never blocks on playback and
// never returns an error: audio faults degrade the alarm to silence and are
// logged instead.
package alarm
