package alarm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/sleepwatch/internal/audio"
	"github.com/oshokin/sleepwatch/internal/audio/mock"
)

var (
	errTestDevice = errors.New("no sound device")
	errTestStop   = errors.New("node exploded")
)

// countingObserver counts engine events.
type countingObserver struct {
	mu sync.Mutex

	started, stopped, scheduled, failed, unavailable int
}

func (o *countingObserver) AlarmStarted()     { o.inc(&o.started) }
func (o *countingObserver) AlarmStopped()     { o.inc(&o.stopped) }
func (o *countingObserver) ToneScheduled()    { o.inc(&o.scheduled) }
func (o *countingObserver) ToneFailed()       { o.inc(&o.failed) }
func (o *countingObserver) AudioUnavailable() { o.inc(&o.unavailable) }

// inc increments one counter under the lock.
func (o *countingObserver) inc(counter *int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	*counter++
}

// requireConsistent asserts the repeat-token invariant.
func requireConsistent(t *testing.T, e *Engine) {
	t.Helper()

	e.mu.Lock()
	defer e.mu.Unlock()

	require.Equal(t, e.isPlaying, e.repeat != nil, "repeat token must exist exactly while playing")
}

// activeCount returns the number of tracked voices.
func activeCount(e *Engine) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.activeTones)
}

// starts returns tone start times relative to the first tone.
func starts(tones []audio.Tone) []time.Duration {
	result := make([]time.Duration, 0, len(tones))
	for _, tone := range tones {
		result = append(result, tone.Start-tones[0].Start)
	}

	return result
}

// TestEngine_PatternFidelity checks frequencies, lengths, offsets and volume of one pattern.
func TestEngine_PatternFidelity(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		backend := new(mock.Backend)
		e := New(backend)

		e.Start(ctx)
		defer e.Stop(ctx)

		tones := backend.LastContext().Tones()
		require.Len(t, tones, 4)

		var (
			frequencies []float64
			durations   []time.Duration
		)

		for _, tone := range tones {
			frequencies = append(frequencies, tone.Frequency)
			durations = append(durations, tone.Stop-tone.Start)

			require.Equal(t, audio.WaveSquare, tone.Waveform)
			require.InDelta(t, 0.6, tone.Envelope[1].Gain, 1e-9)
			require.InDelta(t, 0.6, tone.Envelope[2].Gain, 1e-9)
		}

		require.Equal(t, []float64{880, 660, 880, 660}, frequencies)
		require.Equal(t, []time.Duration{
			200 * time.Millisecond, 200 * time.Millisecond, 200 * time.Millisecond, 200 * time.Millisecond,
		}, durations)
		require.Equal(t, []time.Duration{
			0, 250 * time.Millisecond, 500 * time.Millisecond, 750 * time.Millisecond,
		}, starts(tones))
	})
}

// TestEngine_PatternUsesOneClockReading keeps pattern offsets exact while the audio clock runs.
func TestEngine_PatternUsesOneClockReading(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		backend := &mock.Backend{ClockStep: 5 * time.Millisecond}
		e := New(backend)

		e.Start(ctx)
		defer e.Stop(ctx)

		require.Equal(t, []time.Duration{
			0, 250 * time.Millisecond, 500 * time.Millisecond, 750 * time.Millisecond,
		}, starts(backend.LastContext().Tones()))
	})
}

// TestEngine_StopDoesNotWaitForDevice checks that a slow device open never holds up Stop.
func TestEngine_StopDoesNotWaitForDevice(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		gate := make(chan struct{})
		backend := &mock.Backend{OpenGate: gate}
		e := New(backend)

		go e.Start(ctx)
		synctest.Wait()

		e.Stop(ctx)
		require.False(t, e.IsAlarmPlaying())
		require.Equal(t, "none", e.Snapshot().AudioState)

		close(gate)
		synctest.Wait()

		require.True(t, e.IsAlarmPlaying())
		require.Len(t, backend.LastContext().Tones(), 4)

		e.Close(ctx)
		requireConsistent(t, e)
	})
}

// TestEngine_RepeatsUntilStopped plays the alarm for two cycles and verifies the repeat timing.
func TestEngine_RepeatsUntilStopped(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		backend := &mock.Backend{AutoFinish: true}
		e := New(backend)

		e.Start(ctx)

		time.Sleep(1600 * time.Millisecond)
		synctest.Wait()

		tones := backend.LastContext().Tones()
		require.Equal(t, []time.Duration{
			0, 250 * time.Millisecond, 500 * time.Millisecond, 750 * time.Millisecond,
			1500 * time.Millisecond, 1750 * time.Millisecond, 2000 * time.Millisecond, 2250 * time.Millisecond,
		}, starts(tones))

		e.Stop(ctx)

		time.Sleep(5 * time.Second)
		synctest.Wait()

		require.Len(t, backend.LastContext().Tones(), 8)
	})
}

// TestEngine_StartIsIdempotent verifies a second Start does not add a second schedule.
func TestEngine_StartIsIdempotent(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		backend := &mock.Backend{AutoFinish: true}
		observer := new(countingObserver)
		e := New(backend, WithObserver(observer))

		e.Start(ctx)

		e.mu.Lock()
		first := e.repeat
		e.mu.Unlock()

		e.Start(ctx)

		e.mu.Lock()
		require.Same(t, first, e.repeat)
		e.mu.Unlock()

		time.Sleep(3100 * time.Millisecond)
		synctest.Wait()

		// Three patterns: at 0, 1.5 s and 3 s.
		require.Len(t, backend.LastContext().Tones(), 12)
		require.Equal(t, 1, backend.CallCountOpen)
		require.Equal(t, 1, observer.started)

		e.Stop(ctx)
	})
}

// TestEngine_StopIsIdempotent verifies repeated Stop calls leave the same state as one.
func TestEngine_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		observer := new(countingObserver)
		e := New(new(mock.Backend), WithObserver(observer))

		e.Stop(ctx)
		requireConsistent(t, e)
		require.False(t, e.IsAlarmPlaying())

		e.Start(ctx)
		e.Stop(ctx)
		afterFirst := e.Snapshot()

		e.Stop(ctx)
		require.Equal(t, afterFirst, e.Snapshot())
		requireConsistent(t, e)
		require.Equal(t, 1, observer.stopped)
	})
}

// TestEngine_StateInvariant walks through every transition and checks the repeat-token invariant.
func TestEngine_StateInvariant(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		e := New(&mock.Backend{AutoFinish: true})

		steps := []func(){
			func() {},
			func() { e.InitAudio(ctx) },
			func() { e.Start(ctx) },
			func() { time.Sleep(2 * time.Second) },
			func() { e.PlayTone(ctx, 440, 100*time.Millisecond) },
			func() { e.Start(ctx) },
			func() { e.Stop(ctx) },
			func() { e.Stop(ctx) },
			func() { e.PlayTone(ctx, 440, 100*time.Millisecond) },
			func() { e.Start(ctx) },
			func() { e.Close(ctx) },
		}

		for _, step := range steps {
			step()
			synctest.Wait()
			requireConsistent(t, e)
		}
	})
}

// TestEngine_StopCleansUpAndWinsRace stops mid-pattern and replays a tick that was already in flight.
func TestEngine_StopCleansUpAndWinsRace(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		backend := new(mock.Backend)
		e := New(backend)

		e.Start(ctx)

		e.mu.Lock()
		inFlight := e.repeat
		e.mu.Unlock()

		require.Equal(t, 4, activeCount(e))

		e.Stop(ctx)

		require.Zero(t, activeCount(e))
		require.Empty(t, backend.LastContext().Sounding())

		for _, v := range backend.LastContext().Voices() {
			require.True(t, v.Stopped())
		}

		// A tick that had already fired before Stop must not schedule anything.
		require.False(t, e.fireRepeat(context.Background(), inFlight))
		require.Len(t, backend.LastContext().Tones(), 4)

		time.Sleep(5 * time.Second)
		synctest.Wait()

		require.Len(t, backend.LastContext().Tones(), 4)
	})
}

// TestEngine_StopToleratesEndedAndFailingVoices checks that voice errors never escape Stop.
func TestEngine_StopToleratesEndedAndFailingVoices(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		backend := &mock.Backend{StopError: errTestStop}
		e := New(backend)

		e.Start(ctx)

		voices := backend.LastContext().Voices()
		require.Len(t, voices, 4)

		// The first voice ends naturally right before Stop.
		voices[0].Finish()

		require.NotPanics(t, func() { e.Stop(ctx) })
		require.Zero(t, activeCount(e))
		require.False(t, e.IsAlarmPlaying())

		// Release the voices the backend refused to stop.
		require.NoError(t, backend.LastContext().Close())
	})
}

// TestEngine_ToneSelfRemoval verifies ended tones leave the tracked set without Stop.
func TestEngine_ToneSelfRemoval(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		e := New(&mock.Backend{AutoFinish: true})

		e.Start(ctx)
		require.Equal(t, 4, activeCount(e))

		time.Sleep(time.Second)
		synctest.Wait()

		require.Zero(t, activeCount(e))
		require.True(t, e.IsAlarmPlaying())

		e.Stop(ctx)
	})
}

// TestEngine_EnvelopeClamp schedules a tone shorter than attack plus release.
func TestEngine_EnvelopeClamp(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		backend := new(mock.Backend)
		e := New(backend)

		require.NotPanics(t, func() { e.PlayTone(ctx, 440, 40*time.Millisecond, WithVolume(0.8)) })

		tones := backend.LastContext().Tones()
		require.Len(t, tones, 1)

		env := tones[0].Envelope
		require.NoError(t, env.Validate())
		require.Len(t, env, 4)
		require.Equal(t, tones[0].Stop, env[3].At)
		require.GreaterOrEqual(t, env[2].At, env[1].At, "release must not start before the attack ends")
		require.GreaterOrEqual(t, env[3].At, env[2].At, "release must not end before it starts")

		e.Stop(ctx)
	})
}

// TestToneEnvelope covers the regular, short and tiny tone shapes.
func TestToneEnvelope(t *testing.T) {
	t.Parallel()

	ms := time.Millisecond

	regular := toneEnvelope(100*ms, 200*ms, 0.6)
	require.Equal(t, audio.Envelope{
		{At: 100 * ms, Gain: 0},
		{At: 110 * ms, Gain: 0.6},
		{At: 250 * ms, Gain: 0.6},
		{At: 300 * ms, Gain: 0},
	}, regular)

	short := toneEnvelope(0, 40*ms, 0.5)
	require.Equal(t, 10*ms, short[1].At)
	require.Equal(t, 10*ms, short[2].At)
	require.Equal(t, 40*ms, short[3].At)

	tiny := toneEnvelope(0, 4*ms, 0.5)
	require.NoError(t, tiny.Validate())
	require.Equal(t, 4*ms, tiny[1].At)
	require.Equal(t, 4*ms, tiny[3].At)
}

// TestEngine_PlayToneIsolation verifies test tones leave the alarm state untouched.
func TestEngine_PlayToneIsolation(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		backend := &mock.Backend{AutoFinish: true}
		e := New(backend)

		e.PlayTone(ctx, 880, 200*time.Millisecond)

		require.False(t, e.IsAlarmPlaying())
		requireConsistent(t, e)

		tones := backend.LastContext().Tones()
		require.Len(t, tones, 1)
		require.InDelta(t, DefaultVolume, tones[0].Envelope[1].Gain, 1e-9)

		time.Sleep(3 * time.Second)
		synctest.Wait()

		require.Len(t, backend.LastContext().Tones(), 1)
		require.Zero(t, activeCount(e))
	})
}

// TestEngine_PlayToneRejectsInvalidInput checks invalid tones are dropped and volume is clamped.
func TestEngine_PlayToneRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		backend := &mock.Backend{AutoFinish: true}
		observer := new(countingObserver)
		e := New(backend, WithObserver(observer))

		e.PlayTone(ctx, 0, 200*time.Millisecond)
		e.PlayTone(ctx, 440, 0)
		require.Equal(t, 2, observer.failed)
		require.Zero(t, backend.CallCountOpen)

		e.PlayTone(ctx, 440, 100*time.Millisecond, WithVolume(3))

		tones := backend.LastContext().Tones()
		require.Len(t, tones, 1)
		require.InDelta(t, 1, tones[0].Envelope[1].Gain, 1e-9)
		require.Equal(t, 1, observer.scheduled)

		e.Close(ctx)
	})
}

// TestEngine_InitAudioResumesSuspendedContext checks lazy creation and resume on user action.
func TestEngine_InitAudioResumesSuspendedContext(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		backend := &mock.Backend{StartSuspended: true}
		e := New(backend)

		require.Equal(t, "none", e.Snapshot().AudioState)
		require.Zero(t, backend.CallCountOpen)

		e.InitAudio(ctx)

		audioCtx := backend.LastContext()
		require.Equal(t, audio.StateRunning, audioCtx.State())
		require.Equal(t, 1, audioCtx.CallCountResume)

		e.InitAudio(ctx)
		require.Equal(t, 1, backend.CallCountOpen)
		require.Equal(t, 1, audioCtx.CallCountResume)

		audioCtx.Suspend()
		e.InitAudio(ctx)
		require.Equal(t, 2, audioCtx.CallCountResume)
		require.Equal(t, "running", e.Snapshot().AudioState)
		require.Equal(t, "mock", e.Snapshot().Backend)
	})
}

// TestEngine_DegradedMode verifies the alarm keeps its state machine when audio is unavailable.
func TestEngine_DegradedMode(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		backend := &mock.Backend{OpenError: errTestDevice}
		observer := new(countingObserver)
		e := New(backend, WithObserver(observer))

		require.NotPanics(t, func() { e.Start(ctx) })
		require.True(t, e.IsAlarmPlaying())
		requireConsistent(t, e)

		state := e.Snapshot()
		require.True(t, state.Degraded)
		require.Zero(t, state.ActiveTones)
		require.Equal(t, 1, observer.unavailable)

		time.Sleep(2 * time.Second)
		synctest.Wait()

		e.Stop(ctx)
		require.False(t, e.IsAlarmPlaying())
		requireConsistent(t, e)

		// The device shows up later: the next user action recovers.
		backend.OpenError = nil
		e.PlayTone(ctx, 880, 200*time.Millisecond)
		require.False(t, e.Snapshot().Degraded)
		require.Len(t, backend.LastContext().Tones(), 1)

		e.Close(ctx)
	})
}

// TestEngine_ScheduleFailureIsContained checks that a refusing context never leaves the alarm half-started.
func TestEngine_ScheduleFailureIsContained(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		backend := &mock.Backend{ScheduleError: errTestDevice}
		observer := new(countingObserver)
		e := New(backend, WithObserver(observer))

		e.Start(ctx)
		require.True(t, e.IsAlarmPlaying())
		require.Zero(t, activeCount(e))
		require.Equal(t, 4, observer.failed)

		e.Stop(ctx)
		requireConsistent(t, e)
	})
}

// TestEngine_CloseReleasesContext verifies Close tears down and a later action reopens.
func TestEngine_CloseReleasesContext(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		backend := new(mock.Backend)
		e := New(backend)

		e.Start(ctx)
		first := backend.LastContext()

		e.Close(ctx)
		require.False(t, e.IsAlarmPlaying())
		require.Equal(t, audio.StateClosed, first.State())
		require.Equal(t, 1, first.CallCountClose)
		require.Equal(t, "none", e.Snapshot().AudioState)

		e.PlayTone(ctx, 660, 100*time.Millisecond)
		require.Equal(t, 2, backend.CallCountOpen)
		require.NotSame(t, first, backend.LastContext())

		e.Close(ctx)
	})
}

// TestEngine_NoBackend verifies an engine without a backend is silent but consistent.
func TestEngine_NoBackend(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		e := New(nil)

		e.Start(ctx)
		require.True(t, e.Snapshot().Degraded)
		require.Empty(t, e.Snapshot().Backend)

		e.Stop(ctx)
		requireConsistent(t, e)
	})
}
