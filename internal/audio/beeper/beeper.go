// Package beeper is a degraded audio backend that drives the system beeper
// through beeep.
//
// It keeps the scheduling contract of audio.Context, but ignores waveforms
// and envelopes, and a beep already handed to the operating system cannot be
// cut short: Stop only prevents beeps that have not started yet.
package beeper

import (
	"context"
	"sync"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/oshokin/sleepwatch/internal/audio"
	"github.com/oshokin/sleepwatch/internal/logger"
)

// beepFunc plays one beep and blocks until it finished.
type beepFunc func(frequency float64, durationMs int) error

// Backend opens beeper contexts.
type Backend struct {
	// beep plays a tone; beeep.Beep outside of tests.
	beep beepFunc
}

// New creates a beeper backend.
func New() *Backend {
	return &Backend{
		beep: beeep.Beep,
	}
}

// Name implements audio.Backend.
func (b *Backend) Name() string {
	return "beep"
}

// Open implements audio.Backend.
func (b *Backend) Open(ctx context.Context) (audio.Context, error) {
	return &Context{
		logCtx: context.WithoutCancel(ctx),
		beep:   b.beep,
		opened: time.Now(),
		state:  audio.StateRunning,
		voices: make(map[*voice]struct{}),
	}, nil
}

// Context is a beeper context whose clock is the wall time since Open.
type Context struct {
	// logCtx carries the logger used for failed beeps.
	logCtx context.Context
	// beep plays a tone.
	beep beepFunc
	// opened is the wall time the clock counts from.
	opened time.Time

	// mu protects state and voices.
	mu sync.Mutex
	// state is the lifecycle state.
	state audio.State
	// voices holds every voice that has not ended.
	voices map[*voice]struct{}
}

// State implements audio.Context.
func (c *Context) State() audio.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Resume implements audio.Context.
func (c *Context) Resume(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == audio.StateClosed {
		return audio.ErrContextClosed
	}

	c.state = audio.StateRunning

	return nil
}

// CurrentTime implements audio.Context.
func (c *Context) CurrentTime() time.Duration {
	return time.Since(c.opened)
}

// Schedule implements audio.Context.
func (c *Context) Schedule(tone audio.Tone) (audio.Voice, error) {
	if err := tone.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == audio.StateClosed {
		return nil, audio.ErrContextClosed
	}

	v := &voice{
		owner: c,
		done:  make(chan struct{}),
	}

	c.voices[v] = struct{}{}

	delay := max(0, tone.Start-c.CurrentTime())
	length := tone.Stop - tone.Start

	v.mu.Lock()
	v.timer = time.AfterFunc(delay, func() { v.play(tone.Frequency, length) })
	v.mu.Unlock()

	return v, nil
}

// Close implements audio.Context.
func (c *Context) Close() error {
	c.mu.Lock()
	c.state = audio.StateClosed

	voices := make([]*voice, 0, len(c.voices))
	for v := range c.voices {
		voices = append(voices, v)
	}
	c.mu.Unlock()

	for _, v := range voices {
		_ = v.Stop()
	}

	return nil
}

// forget removes an ended voice from the context.
func (c *Context) forget(v *voice) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.voices, v)
}

// voice is one scheduled beep.
type voice struct {
	// owner is the context that scheduled the beep.
	owner *Context

	// mu protects the fields below.
	mu sync.Mutex
	// timer fires when the beep is due.
	timer *time.Timer
	// done is closed when the voice ended.
	done chan struct{}
	// ended reports whether done has been closed.
	ended bool
}

// play sounds the beep unless the voice was stopped in the meantime.
func (v *voice) play(frequency float64, length time.Duration) {
	v.mu.Lock()
	if v.ended {
		v.mu.Unlock()
		return
	}
	v.mu.Unlock()

	if err := v.owner.beep(frequency, int(length.Milliseconds())); err != nil {
		logger.DebugKV(v.owner.logCtx, "System beep failed", "frequency", frequency, "error", err)
	}

	v.end()
}

// Stop implements audio.Voice.
func (v *voice) Stop() error {
	v.mu.Lock()

	if v.ended {
		v.mu.Unlock()
		return audio.ErrVoiceStopped
	}

	v.timer.Stop()
	v.mu.Unlock()

	v.end()

	return nil
}

// Done implements audio.Voice.
func (v *voice) Done() <-chan struct{} {
	return v.done
}

// end closes done once and detaches the voice from its context.
func (v *voice) end() {
	v.mu.Lock()
	if v.ended {
		v.mu.Unlock()
		return
	}

	v.ended = true
	close(v.done)
	v.mu.Unlock()

	v.owner.forget(v)
}
