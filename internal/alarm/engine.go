package alarm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oshokin/sleepwatch/internal/audio"
	domain "github.com/oshokin/sleepwatch/internal/domain/alarm"
	"github.com/oshokin/sleepwatch/internal/logger"
)

const (
	// DefaultVolume is the gain used by PlayTone unless WithVolume is given.
	DefaultVolume = 0.5

	// audioStateNone is reported before any audio context exists.
	audioStateNone = "none"
)

// errNoBackend is reported when the engine was built without an audio backend.
var errNoBackend = errors.New("no audio backend configured")

// Observer receives engine events, typically to feed metrics.
type Observer interface {
	// AlarmStarted is called when the alarm goes from idle to playing.
	AlarmStarted()
	// AlarmStopped is called when the alarm goes from playing to idle.
	AlarmStopped()
	// ToneScheduled is called for every tone handed to the audio context.
	ToneScheduled()
	// ToneFailed is called for every tone that could not be scheduled.
	ToneFailed()
	// AudioUnavailable is called when the engine enters degraded mode.
	AudioUnavailable()
}

// nopObserver discards every event.
type nopObserver struct{}

func (nopObserver) AlarmStarted()     {}
func (nopObserver) AlarmStopped()     {}
func (nopObserver) ToneScheduled()    {}
func (nopObserver) ToneFailed()       {}
func (nopObserver) AudioUnavailable() {}

// repeatTask is the cancellation token of one Start..Stop period.
type repeatTask struct {
	// cancel stops the goroutine that repeats the pattern.
	cancel context.CancelFunc
}

// Engine synthesises the alarm. One engine owns one audio output.
type Engine struct {
	// backend opens the audio context on first use.
	backend audio.Backend
	// observer receives lifecycle and tone events.
	observer Observer
	// now returns the wall time recorded in state changes.
	now func() time.Time

	// openMu serialises opening and closing the audio context. It is never
	// taken while mu is held.
	openMu sync.Mutex

	// mu protects every field below.
	mu sync.Mutex
	// audioCtx is nil until the first successful InitAudio.
	audioCtx audio.Context
	// degraded is set while the audio context cannot be opened.
	degraded bool
	// isPlaying is true between Start and Stop.
	isPlaying bool
	// activeTones holds voices that have not ended yet.
	activeTones map[audio.Voice]struct{}
	// repeat is non-nil exactly while isPlaying is true.
	repeat *repeatTask
	// changedAt is when isPlaying last changed.
	changedAt time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver registers an event observer.
func WithObserver(observer Observer) Option {
	return func(e *Engine) {
		if observer != nil {
			e.observer = observer
		}
	}
}

// New creates an idle engine. No audio resource is allocated until InitAudio,
// PlayTone or Start is called.
func New(backend audio.Backend, opts ...Option) *Engine {
	e := &Engine{
		backend:     backend,
		observer:    nopObserver{},
		now:         time.Now,
		activeTones: make(map[audio.Voice]struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// InitAudio opens the audio context if there is none and resumes it if the
// platform suspended it. Call it from user-initiated actions only.
func (e *Engine) InitAudio(ctx context.Context) {
	e.acquireAudio(ctx)
}

// ToneOption configures a single PlayTone call.
type ToneOption func(*toneParams)

// toneParams holds optional PlayTone arguments.
type toneParams struct {
	// volume is the sustain gain.
	volume float64
}

// WithVolume sets the sustain gain of a tone; values are clamped to [0, 1].
func WithVolume(volume float64) ToneOption {
	return func(p *toneParams) {
		p.volume = volume
	}
}

// PlayTone schedules one square-wave tone starting now. It does not affect
// whether the alarm is playing. Invalid arguments and audio faults make the
// call a logged no-op.
func (e *Engine) PlayTone(ctx context.Context, frequency float64, duration time.Duration, opts ...ToneOption) {
	params := toneParams{volume: DefaultVolume}
	for _, opt := range opts {
		opt(&params)
	}

	if !validTone(ctx, frequency, duration) {
		e.observer.ToneFailed()
		return
	}

	e.acquireAudio(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.audioCtx == nil {
		return
	}

	e.playToneLocked(ctx, e.audioCtx.CurrentTime(), frequency, duration, params.volume)
}

// Start begins the alarm: one pattern right away, then one every
// PatternInterval. Calling Start while playing does nothing.
func (e *Engine) Start(ctx context.Context) {
	if e.IsAlarmPlaying() {
		return
	}

	e.acquireAudio(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.isPlaying {
		return
	}

	// The repeat outlives the caller's request, so only its values are kept.
	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	task := &repeatTask{cancel: cancel}

	e.isPlaying = true
	e.repeat = task
	e.changedAt = e.now()

	e.firePatternLocked(taskCtx)

	go e.repeatPattern(taskCtx, task)

	e.observer.AlarmStarted()
	logger.InfoKV(ctx, "Alarm started", "degraded", e.degraded)
}

// Stop silences the alarm: the repeat is cancelled and every tracked tone is
// stopped. No tone is scheduled by the repeat after Stop returns. Calling Stop
// while idle only clears stray tones.
func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	wasPlaying := e.isPlaying

	e.isPlaying = false

	if e.repeat != nil {
		e.repeat.cancel()
		e.repeat = nil
	}

	stopped := e.stopTonesLocked(ctx)

	if !wasPlaying {
		return
	}

	e.changedAt = e.now()
	e.observer.AlarmStopped()
	logger.InfoKV(ctx, "Alarm stopped", "tones_stopped", stopped)
}

// IsAlarmPlaying reports whether the alarm pattern is repeating.
func (e *Engine) IsAlarmPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.isPlaying
}

// Snapshot returns the current engine state.
func (e *Engine) Snapshot() *domain.State {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := &domain.State{
		ChangedAt:   e.changedAt,
		AudioState:  audioStateNone,
		ActiveTones: len(e.activeTones),
		IsPlaying:   e.isPlaying,
		Degraded:    e.degraded,
	}

	if e.backend != nil {
		state.Backend = e.backend.Name()
	}

	if e.audioCtx != nil {
		state.AudioState = e.audioCtx.State().String()
	}

	return state
}

// Close stops the alarm and releases the audio context. The engine stays
// usable: a later InitAudio, PlayTone or Start opens a new context.
func (e *Engine) Close(ctx context.Context) {
	e.openMu.Lock()
	defer e.openMu.Unlock()

	e.Stop(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.audioCtx == nil {
		return
	}

	if err := e.audioCtx.Close(); err != nil {
		logger.WarnKV(ctx, "Failed to close audio context", "error", err)
	}

	e.audioCtx = nil
}

// acquireAudio opens the audio context if there is none and resumes it if
// the platform suspended it. The device is opened without holding e.mu so
// Stop and IsAlarmPlaying never wait for it.
func (e *Engine) acquireAudio(ctx context.Context) {
	e.openMu.Lock()
	defer e.openMu.Unlock()

	// A repeat cancelled while waiting for Close must not reopen the device.
	if ctx.Err() != nil {
		return
	}

	e.mu.Lock()
	if e.audioCtx != nil && e.audioCtx.State() == audio.StateClosed {
		e.audioCtx = nil
	}

	audioCtx := e.audioCtx
	e.mu.Unlock()

	if audioCtx == nil {
		audioCtx = e.openAudio(ctx)
		if audioCtx == nil {
			return
		}
	}

	if audioCtx.State() != audio.StateSuspended {
		return
	}

	// Tones scheduled on a context that stays suspended play once it resumes.
	if err := audioCtx.Resume(ctx); err != nil {
		logger.WarnKV(ctx, "Failed to resume audio context", "error", err)
	}
}

// openAudio opens a context on the backend and publishes it, or marks the
// engine degraded. e.openMu must be held and e.mu must not be.
func (e *Engine) openAudio(ctx context.Context) audio.Context {
	if e.backend == nil {
		e.mu.Lock()
		e.markDegradedLocked(ctx, errNoBackend)
		e.mu.Unlock()

		return nil
	}

	audioCtx, err := e.backend.Open(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.markDegradedLocked(ctx, err)
		return nil
	}

	e.audioCtx = audioCtx
	e.degraded = false

	logger.InfoKV(ctx, "Audio context opened", "backend", e.backend.Name(), "state", audioCtx.State().String())

	return audioCtx
}

// markDegradedLocked records that audio is unavailable. e.mu must be held.
func (e *Engine) markDegradedLocked(ctx context.Context, err error) {
	if !e.degraded {
		logger.WarnKV(ctx, "Audio unavailable, alarm is silent", "error", err)
		e.observer.AudioUnavailable()
	}

	e.degraded = true
}

// validTone reports whether a tone can be played at all.
func validTone(ctx context.Context, frequency float64, duration time.Duration) bool {
	if frequency > 0 && duration > 0 {
		return true
	}

	logger.WarnKV(ctx, "Tone ignored", "frequency", frequency, "duration", duration.String())

	return false
}

// playToneLocked schedules one tone at start on the audio clock and tracks
// its voice until it ends. e.mu must be held and e.audioCtx must be set.
func (e *Engine) playToneLocked(
	ctx context.Context,
	start time.Duration,
	frequency float64,
	duration time.Duration,
	volume float64,
) {
	volume = max(0, min(1, volume))

	voice, err := e.audioCtx.Schedule(audio.Tone{
		Frequency: frequency,
		Waveform:  audio.WaveSquare,
		Start:     start,
		Stop:      start + duration,
		Envelope:  toneEnvelope(start, duration, volume),
	})
	if err != nil {
		logger.WarnKV(ctx, "Failed to schedule tone", "frequency", frequency, "error", err)
		e.observer.ToneFailed()

		return
	}

	e.activeTones[voice] = struct{}{}
	e.observer.ToneScheduled()

	go e.forgetWhenDone(voice)
}

// firePatternLocked schedules one full alarm pattern. Every step is placed
// against a single reading of the audio clock. e.mu must be held.
func (e *Engine) firePatternLocked(ctx context.Context) {
	if e.audioCtx == nil {
		return
	}

	base := e.audioCtx.CurrentTime()

	for _, step := range Pattern {
		e.playToneLocked(ctx, base+step.Offset, step.Frequency, step.Duration, step.Volume)
	}
}

// repeatPattern fires the pattern every PatternInterval until task is cancelled.
func (e *Engine) repeatPattern(ctx context.Context, task *repeatTask) {
	ticker := time.NewTicker(PatternInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !e.fireRepeat(ctx, task) {
				return
			}
		}
	}
}

// fireRepeat fires one repetition if task is still the current token.
// A tick that raced with Stop finds its token revoked and schedules nothing.
func (e *Engine) fireRepeat(ctx context.Context, task *repeatTask) bool {
	e.mu.Lock()
	missing := e.audioCtx == nil
	e.mu.Unlock()

	if missing {
		e.acquireAudio(ctx)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.repeat != task || !e.isPlaying || ctx.Err() != nil {
		return false
	}

	e.firePatternLocked(ctx)

	return true
}

// stopTonesLocked force-stops every tracked voice and returns how many were
// still sounding. Voices that already ended are not an error. e.mu must be held.
func (e *Engine) stopTonesLocked(ctx context.Context) int {
	stopped := 0

	for voice := range e.activeTones {
		err := voice.Stop()

		switch {
		case err == nil:
			stopped++
		case errors.Is(err, audio.ErrVoiceStopped):
		default:
			logger.DebugKV(ctx, "Failed to stop tone", "error", err)
		}
	}

	clear(e.activeTones)

	return stopped
}

// forgetWhenDone drops voice from the tracked set once it ended.
func (e *Engine) forgetWhenDone(voice audio.Voice) {
	<-voice.Done()

	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.activeTones, voice)
}
