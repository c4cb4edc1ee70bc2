package alarm

import (
	"time"

	"github.com/oshokin/sleepwatch/internal/audio"
)

// Step is one tone of the alarm pattern.
type Step struct {
	// Offset is the start of the tone relative to the start of the pattern.
	Offset time.Duration
	// Frequency is the tone frequency in Hz.
	Frequency float64
	// Duration is the tone length.
	Duration time.Duration
	// Volume is the sustain gain in [0, 1].
	Volume float64
}

const (
	// PatternInterval is the period at which the pattern repeats while playing.
	PatternInterval = 1500 * time.Millisecond

	// highFrequency and lowFrequency alternate in the pattern.
	highFrequency = 880
	lowFrequency  = 660

	// patternToneDuration is the length of every pattern tone.
	patternToneDuration = 200 * time.Millisecond
	// patternVolume is the sustain gain of every pattern tone.
	patternVolume = 0.6

	// attackTime is the ramp from silence to full volume.
	attackTime = 10 * time.Millisecond
	// releaseTime is the ramp from full volume back to silence.
	releaseTime = 50 * time.Millisecond
)

// Pattern is the alarm cycle: alternating high and low tones, 250 ms apart.
var Pattern = [...]Step{
	{Offset: 0, Frequency: highFrequency, Duration: patternToneDuration, Volume: patternVolume},
	{Offset: 250 * time.Millisecond, Frequency: lowFrequency, Duration: patternToneDuration, Volume: patternVolume},
	{Offset: 500 * time.Millisecond, Frequency: highFrequency, Duration: patternToneDuration, Volume: patternVolume},
	{Offset: 750 * time.Millisecond, Frequency: lowFrequency, Duration: patternToneDuration, Volume: patternVolume},
}

// toneEnvelope shapes a tone starting at start: a linear attack to volume, a
// hold, and a linear release ending exactly at start+duration.
// Short tones collapse the hold; the release never starts before the attack ends.
func toneEnvelope(start, duration time.Duration, volume float64) audio.Envelope {
	end := start + duration
	attackEnd := start + min(attackTime, duration)
	releaseStart := max(attackEnd, end-releaseTime)

	return audio.Envelope{
		{At: start, Gain: 0},
		{At: attackEnd, Gain: volume},
		{At: releaseStart, Gain: volume},
		{At: end, Gain: 0},
	}
}
