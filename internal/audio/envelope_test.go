package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestEnvelope_GainAt checks linear interpolation and clamping outside the breakpoints.
func TestEnvelope_GainAt(t *testing.T) {
	t.Parallel()

	env := Envelope{
		{At: 0, Gain: 0},
		{At: 10 * time.Millisecond, Gain: 0.6},
		{At: 150 * time.Millisecond, Gain: 0.6},
		{At: 200 * time.Millisecond, Gain: 0},
	}

	require.NoError(t, env.Validate())

	require.InDelta(t, 0, env.GainAt(-time.Millisecond), 1e-9)
	require.InDelta(t, 0.3, env.GainAt(5*time.Millisecond), 1e-9)
	require.InDelta(t, 0.6, env.GainAt(100*time.Millisecond), 1e-9)
	require.InDelta(t, 0.3, env.GainAt(175*time.Millisecond), 1e-9)
	require.InDelta(t, 0, env.GainAt(time.Second), 1e-9)
}

// TestEnvelope_ZeroLengthRamp verifies that coincident breakpoints jump instead of dividing by zero.
func TestEnvelope_ZeroLengthRamp(t *testing.T) {
	t.Parallel()

	env := Envelope{
		{At: 0, Gain: 0},
		{At: 10 * time.Millisecond, Gain: 0.5},
		{At: 10 * time.Millisecond, Gain: 0.5},
		{At: 40 * time.Millisecond, Gain: 0},
	}

	require.NoError(t, env.Validate())
	require.InDelta(t, 0.5, env.GainAt(10*time.Millisecond), 1e-9)
	require.InDelta(t, 0.25, env.GainAt(25*time.Millisecond), 1e-9)
}

// TestEnvelope_Validate rejects backwards breakpoints and out-of-range gains.
func TestEnvelope_Validate(t *testing.T) {
	t.Parallel()

	require.Error(t, Envelope{{At: 10}, {At: 5}}.Validate())
	require.ErrorIs(t, Envelope{{At: 0, Gain: 1.5}}.Validate(), ErrInvalidTone)
	require.InDelta(t, 1, Envelope(nil).GainAt(time.Second), 1e-9)
}

// TestTone_Validate covers frequency and span checks.
func TestTone_Validate(t *testing.T) {
	t.Parallel()

	tone := Tone{Frequency: 880, Start: 0, Stop: 200 * time.Millisecond}
	require.NoError(t, tone.Validate())

	tone.Frequency = 0
	require.ErrorIs(t, tone.Validate(), ErrInvalidTone)

	tone.Frequency = 660
	tone.Stop = tone.Start
	require.ErrorIs(t, tone.Validate(), ErrInvalidTone)
}
