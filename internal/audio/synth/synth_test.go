package synth

import (
	"context"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/sleepwatch/internal/audio"
)

// testSampleRate keeps frame arithmetic easy to follow: one frame per millisecond.
const testSampleRate = 1000

// render pulls the given number of frames from the context and decodes them.
func render(t *testing.T, c *Context, frames int) []int16 {
	t.Helper()

	buf := make([]byte, frames*BytesPerFrame)

	n, err := c.Read(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)

	samples := make([]int16, frames)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*BytesPerFrame:]))
	}

	return samples
}

// flatTone builds a square tone with constant gain between start and stop.
func flatTone(start, stop time.Duration, gain float64) audio.Tone {
	return audio.Tone{
		Frequency: 100,
		Waveform:  audio.WaveSquare,
		Start:     start,
		Stop:      stop,
		Envelope: audio.Envelope{
			{At: start, Gain: gain},
			{At: stop, Gain: gain},
		},
	}
}

// TestContext_RendersScheduledSpan checks that a voice only sounds inside its span and ends on time.
func TestContext_RendersScheduledSpan(t *testing.T) {
	t.Parallel()

	c := New(WithSampleRate(testSampleRate))

	v, err := c.Schedule(flatTone(10*time.Millisecond, 30*time.Millisecond, 0.5))
	require.NoError(t, err)
	require.Equal(t, 1, c.ActiveVoices())

	samples := render(t, c, 40)

	for i := range 10 {
		require.Zero(t, samples[i], "frame %d before start", i)
	}

	// 100 Hz square at 1 kHz: five frames high, five frames low.
	require.Equal(t, toPCM(0.5), samples[10])
	require.Equal(t, toPCM(-0.5), samples[15])

	for i := 30; i < 40; i++ {
		require.Zero(t, samples[i], "frame %d after stop", i)
	}

	require.Equal(t, 40*time.Millisecond, c.CurrentTime())

	select {
	case <-v.Done():
	default:
		t.Fatal("voice should have ended naturally")
	}

	require.Zero(t, c.ActiveVoices())
	require.ErrorIs(t, v.Stop(), audio.ErrVoiceStopped)
}

// TestContext_StopSilencesVoice verifies that an early Stop removes the voice and is not repeatable.
func TestContext_StopSilencesVoice(t *testing.T) {
	t.Parallel()

	c := New(WithSampleRate(testSampleRate))

	v, err := c.Schedule(flatTone(0, time.Second, 1))
	require.NoError(t, err)

	require.NotZero(t, render(t, c, 5)[0])
	require.NoError(t, v.Stop())
	require.ErrorIs(t, v.Stop(), audio.ErrVoiceStopped)

	for _, s := range render(t, c, 5) {
		require.Zero(t, s)
	}
}

// TestContext_MixClamps ensures overlapping loud voices do not wrap around.
func TestContext_MixClamps(t *testing.T) {
	t.Parallel()

	c := New(WithSampleRate(testSampleRate))

	for range 3 {
		_, err := c.Schedule(flatTone(0, 10*time.Millisecond, 0.9))
		require.NoError(t, err)
	}

	samples := render(t, c, 1)
	require.Equal(t, int16(fullScale), samples[0])
}

// TestContext_SuspendedClockHalts checks that a suspended context renders silence without advancing.
func TestContext_SuspendedClockHalts(t *testing.T) {
	t.Parallel()

	c := New(WithSampleRate(testSampleRate), WithSuspended())
	require.Equal(t, audio.StateSuspended, c.State())

	_, err := c.Schedule(flatTone(0, 10*time.Millisecond, 1))
	require.NoError(t, err)

	for _, s := range render(t, c, 20) {
		require.Zero(t, s)
	}

	require.Zero(t, c.CurrentTime())

	require.NoError(t, c.Resume(context.Background()))
	require.Equal(t, audio.StateRunning, c.State())
	require.NotZero(t, render(t, c, 1)[0])
}

// TestContext_Close ends voices and rejects further work.
func TestContext_Close(t *testing.T) {
	t.Parallel()

	c := New(WithSampleRate(testSampleRate))

	v, err := c.Schedule(flatTone(0, time.Second, 1))
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	<-v.Done()

	_, err = c.Schedule(flatTone(0, time.Second, 1))
	require.ErrorIs(t, err, audio.ErrContextClosed)
	require.ErrorIs(t, c.Resume(context.Background()), audio.ErrContextClosed)

	_, err = c.Read(make([]byte, 8))
	require.ErrorIs(t, err, io.EOF)
}

// TestContext_PastToneEndsImmediately verifies a tone scheduled entirely in the past never sounds.
func TestContext_PastToneEndsImmediately(t *testing.T) {
	t.Parallel()

	c := New(WithSampleRate(testSampleRate))
	render(t, c, 50)

	v, err := c.Schedule(flatTone(0, 20*time.Millisecond, 1))
	require.NoError(t, err)

	<-v.Done()
	require.Zero(t, c.ActiveVoices())
}

// TestContext_RejectsInvalidTone checks validation happens before scheduling.
func TestContext_RejectsInvalidTone(t *testing.T) {
	t.Parallel()

	c := New()

	_, err := c.Schedule(audio.Tone{Frequency: -1, Stop: time.Second})
	require.ErrorIs(t, err, audio.ErrInvalidTone)
	require.Equal(t, DefaultSampleRate, c.SampleRate())
}

// TestContext_ClockAfterLongUptime keeps the clock and scheduling exact after days of rendering.
func TestContext_ClockAfterLongUptime(t *testing.T) {
	t.Parallel()

	const uptime = 60 * time.Hour

	c := New()
	c.frames = int64(uptime/time.Second) * DefaultSampleRate

	now := c.CurrentTime()
	require.Equal(t, uptime, now)

	v, err := c.Schedule(flatTone(now, now+200*time.Millisecond, 1))
	require.NoError(t, err)
	require.Equal(t, 1, c.ActiveVoices())

	select {
	case <-v.Done():
		t.Fatal("voice ended before sounding")
	default:
	}

	require.NotZero(t, render(t, c, 1)[0])

	// Conversions round-trip for a fractional second late in the clock.
	frame := c.frameOf(uptime + 250*time.Millisecond)
	require.Equal(t, c.frames+int64(DefaultSampleRate/4), frame)
	require.Equal(t, uptime+250*time.Millisecond, c.timeOf(frame))
}
