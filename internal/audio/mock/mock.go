// Package mock provides in-memory implementations of the audio.Backend,
// audio.Context and audio.Voice interfaces for unit tests.
//
// All mocks are safe for concurrent use. They record every scheduled tone so
// tests can assert on frequencies and timings, and expose exported fields that
// control return values.
//
// Typical usage:
//
//	backend := &mock.Backend{AutoFinish: true}
//	engine := alarm.New(backend)
//	engine.Start(ctx)
//	tones := backend.LastContext().Tones()
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/oshokin/sleepwatch/internal/audio"
)

// Backend is a mock implementation of audio.Backend.
type Backend struct {
	mu sync.Mutex

	// OpenError is returned by Open when set.
	OpenError error
	// StartSuspended makes opened contexts start in the suspended state.
	StartSuspended bool
	// ResumeError is returned by Context.Resume of opened contexts.
	ResumeError error
	// ScheduleError is returned by Context.Schedule of opened contexts.
	ScheduleError error
	// StopError is returned by Voice.Stop of voices that are still sounding.
	StopError error
	// AutoFinish ends voices on their own once their stop time elapsed on the
	// wall clock, mimicking a device that keeps rendering.
	AutoFinish bool
	// ClockStep advances the clock of opened contexts on every CurrentTime
	// read, mimicking a device that renders between reads.
	ClockStep time.Duration
	// OpenGate, when set, makes Open wait until it is closed or ctx is done.
	OpenGate chan struct{}

	// CallCountOpen records how many times Open was called.
	CallCountOpen int
	// Contexts holds every context opened so far, in order.
	Contexts []*Context
}

// Name implements audio.Backend.
func (b *Backend) Name() string {
	return "mock"
}

// Open implements audio.Backend.
func (b *Backend) Open(ctx context.Context) (audio.Context, error) {
	b.mu.Lock()
	gate := b.OpenGate
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.CallCountOpen++

	if b.OpenError != nil {
		return nil, b.OpenError
	}

	state := audio.StateRunning
	if b.StartSuspended {
		state = audio.StateSuspended
	}

	c := &Context{
		backend: b,
		opened:  time.Now(),
		step:    b.ClockStep,
		state:   state,
	}

	b.Contexts = append(b.Contexts, c)

	return c, nil
}

// LastContext returns the most recently opened context or nil.
func (b *Backend) LastContext() *Context {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.Contexts) == 0 {
		return nil
	}

	return b.Contexts[len(b.Contexts)-1]
}

// settings returns a consistent copy of the knobs used by contexts and voices.
func (b *Backend) settings() (resumeErr, scheduleErr, stopErr error, autoFinish bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.ResumeError, b.ScheduleError, b.StopError, b.AutoFinish
}

// Context is a mock implementation of audio.Context whose clock is the wall
// time elapsed since Open (fake time inside a testing/synctest bubble).
type Context struct {
	mu sync.Mutex

	// backend is the mock that opened this context.
	backend *Backend
	// opened is the wall time the clock counts from.
	opened time.Time
	// step is added to the clock on every read.
	step time.Duration
	// drift is the total added by reads so far.
	drift time.Duration
	// state is the lifecycle state.
	state audio.State
	// voices holds every voice ever scheduled, in order.
	voices []*Voice

	// CallCountResume records how many times Resume was called.
	CallCountResume int
	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// State implements audio.Context.
func (c *Context) State() audio.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Suspend moves the context to the suspended state, as a platform would.
func (c *Context) Suspend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = audio.StateSuspended
}

// Resume implements audio.Context.
func (c *Context) Resume(context.Context) error {
	resumeErr, _, _, _ := c.backend.settings()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.CallCountResume++

	if resumeErr != nil {
		return resumeErr
	}

	if c.state == audio.StateClosed {
		return audio.ErrContextClosed
	}

	c.state = audio.StateRunning

	return nil
}

// CurrentTime implements audio.Context.
func (c *Context) CurrentTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Since(c.opened) + c.drift
	c.drift += c.step

	return now
}

// Schedule implements audio.Context.
func (c *Context) Schedule(tone audio.Tone) (audio.Voice, error) {
	_, scheduleErr, _, autoFinish := c.backend.settings()
	if scheduleErr != nil {
		return nil, scheduleErr
	}

	if err := tone.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == audio.StateClosed {
		return nil, audio.ErrContextClosed
	}

	v := &Voice{
		backend: c.backend,
		Tone:    tone,
		done:    make(chan struct{}),
	}

	c.voices = append(c.voices, v)

	if autoFinish {
		v.mu.Lock()
		v.timer = time.AfterFunc(tone.Stop-time.Since(c.opened)-c.drift, v.Finish)
		v.mu.Unlock()
	}

	return v, nil
}

// Close implements audio.Context.
func (c *Context) Close() error {
	c.mu.Lock()
	voices := append([]*Voice(nil), c.voices...)
	c.CallCountClose++
	c.state = audio.StateClosed
	c.mu.Unlock()

	for _, v := range voices {
		v.Finish()
	}

	return nil
}

// Voices returns every voice scheduled so far, in order.
func (c *Context) Voices() []*Voice {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]*Voice(nil), c.voices...)
}

// Tones returns the tones of every voice scheduled so far, in order.
func (c *Context) Tones() []audio.Tone {
	voices := c.Voices()

	tones := make([]audio.Tone, 0, len(voices))
	for _, v := range voices {
		tones = append(tones, v.Tone)
	}

	return tones
}

// Sounding returns the voices that have not ended yet.
func (c *Context) Sounding() []*Voice {
	var sounding []*Voice

	for _, v := range c.Voices() {
		if !v.Ended() {
			sounding = append(sounding, v)
		}
	}

	return sounding
}

// Voice is a mock implementation of audio.Voice.
type Voice struct {
	mu sync.Mutex

	// backend supplies the configured StopError.
	backend *Backend
	// done is closed when the voice ends.
	done chan struct{}
	// ended reports whether done has been closed.
	ended bool
	// stopped reports whether the voice ended through Stop.
	stopped bool
	// timer ends the voice when AutoFinish is enabled.
	timer *time.Timer

	// Tone is the scheduled tone.
	Tone audio.Tone
	// CallCountStop records how many times Stop was called.
	CallCountStop int
}

// Stop implements audio.Voice.
func (v *Voice) Stop() error {
	_, _, stopErr, _ := v.backend.settings()

	v.mu.Lock()
	defer v.mu.Unlock()

	v.CallCountStop++

	if v.ended {
		return audio.ErrVoiceStopped
	}

	if stopErr != nil {
		return stopErr
	}

	v.stopped = true
	v.endLocked()

	return nil
}

// Done implements audio.Voice.
func (v *Voice) Done() <-chan struct{} {
	return v.done
}

// Finish ends the voice as if it played to completion. It is idempotent.
func (v *Voice) Finish() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.endLocked()
}

// Ended reports whether the voice ended.
func (v *Voice) Ended() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.ended
}

// Stopped reports whether the voice was ended through Stop.
func (v *Voice) Stopped() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.stopped
}

// endLocked closes done once. v.mu must be held.
func (v *Voice) endLocked() {
	if v.ended {
		return
	}

	v.ended = true
	close(v.done)

	if v.timer != nil {
		v.timer.Stop()
	}
}
