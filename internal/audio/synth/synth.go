// Package synth implements an audio.Context as a pure-Go software mixer.
//
// The context renders signed 16-bit little-endian mono PCM through its Read
// method; the audio clock is the number of frames pulled so far, so it only
// advances while a sink (a sound device player or a test) consumes samples.
package synth

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"

	"github.com/oshokin/sleepwatch/internal/audio"
)

const (
	// DefaultSampleRate is the rendering rate used when none is configured.
	DefaultSampleRate = 44100

	// BytesPerFrame is the size of one rendered mono int16 frame.
	BytesPerFrame = 2

	// fullScale converts a [-1, 1] sample into the int16 range.
	fullScale = math.MaxInt16
)

// Context is a software audio context. It is safe for concurrent use.
type Context struct {
	// sampleRate is the number of frames per second of context time.
	sampleRate int64

	// mu protects every field below.
	mu sync.Mutex
	// state is the lifecycle state of the context.
	state audio.State
	// frames is the number of frames rendered so far; it drives the clock.
	frames int64
	// voices holds every voice that has not ended yet.
	voices map[*voice]struct{}
}

// Option configures a Context.
type Option func(*Context)

// WithSampleRate overrides DefaultSampleRate.
func WithSampleRate(rate int) Option {
	return func(c *Context) {
		if rate > 0 {
			c.sampleRate = int64(rate)
		}
	}
}

// WithSuspended creates the context in the suspended state.
func WithSuspended() Option {
	return func(c *Context) {
		c.state = audio.StateSuspended
	}
}

// New creates a running software context.
func New(opts ...Option) *Context {
	c := &Context{
		sampleRate: DefaultSampleRate,
		state:      audio.StateRunning,
		voices:     make(map[*voice]struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SampleRate returns the rendering rate in frames per second.
func (c *Context) SampleRate() int {
	return int(c.sampleRate)
}

// State returns the current lifecycle state.
func (c *Context) State() audio.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Resume moves a suspended context to the running state.
func (c *Context) Resume(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case audio.StateClosed:
		return audio.ErrContextClosed
	case audio.StateSuspended:
		c.state = audio.StateRunning
	}

	return nil
}

// Suspend halts the clock until Resume is called.
func (c *Context) Suspend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == audio.StateRunning {
		c.state = audio.StateSuspended
	}
}

// CurrentTime returns the context clock.
func (c *Context) CurrentTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.timeOf(c.frames)
}

// Schedule registers a tone for rendering.
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
		owner:      c,
		tone:       tone,
		startFrame: c.frameOf(tone.Start),
		stopFrame:  c.frameOf(tone.Stop),
		done:       make(chan struct{}),
	}

	// A tone whose span is already in the past ends without sounding.
	if v.stopFrame <= c.frames {
		v.finishLocked()
		return v, nil
	}

	c.voices[v] = struct{}{}

	return v, nil
}

// ActiveVoices returns the number of voices that have not ended.
func (c *Context) ActiveVoices() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.voices)
}

// Read renders PCM into p and advances the clock.
// A suspended context yields silence without advancing; a closed one returns io.EOF.
func (c *Context) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	frameCount := len(p) / BytesPerFrame

	switch c.state {
	case audio.StateClosed:
		return 0, io.EOF
	case audio.StateSuspended:
		clear(p[:frameCount*BytesPerFrame])
		return frameCount * BytesPerFrame, nil
	}

	for i := range frameCount {
		frame := c.frames + int64(i)
		sample := c.mixLocked(frame)
		binary.LittleEndian.PutUint16(p[i*BytesPerFrame:], uint16(toPCM(sample)))
	}

	c.frames += int64(frameCount)

	for v := range c.voices {
		if v.stopFrame <= c.frames {
			v.finishLocked()
		}
	}

	return frameCount * BytesPerFrame, nil
}

// Close ends every voice and rejects further scheduling.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == audio.StateClosed {
		return nil
	}

	c.state = audio.StateClosed

	for v := range c.voices {
		v.finishLocked()
	}

	return nil
}

// mixLocked sums every voice sounding at frame.
func (c *Context) mixLocked(frame int64) float64 {
	var sum float64

	now := c.timeOf(frame)

	for v := range c.voices {
		if frame < v.startFrame || frame >= v.stopFrame {
			continue
		}

		elapsed := now - v.tone.Start
		sum += oscillate(v.tone.Waveform, v.tone.Frequency, elapsed) * v.tone.Envelope.GainAt(now)
	}

	return sum
}

// timeOf converts a frame index into context time.
// Whole seconds and the remainder are converted apart so long uptimes do not overflow.
func (c *Context) timeOf(frame int64) time.Duration {
	seconds, rest := frame/c.sampleRate, frame%c.sampleRate

	return time.Duration(seconds)*time.Second + time.Duration(rest*int64(time.Second)/c.sampleRate)
}

// frameOf converts context time into the first frame at or after it.
func (c *Context) frameOf(t time.Duration) int64 {
	if t <= 0 {
		return 0
	}

	seconds, rest := int64(t/time.Second), int64(t%time.Second)

	return seconds*c.sampleRate + (rest*c.sampleRate+int64(time.Second)-1)/int64(time.Second)
}

// oscillate returns the oscillator value in [-1, 1] after elapsed time.
func oscillate(waveform audio.Waveform, frequency float64, elapsed time.Duration) float64 {
	cycles := frequency * elapsed.Seconds()

	switch waveform {
	case audio.WaveSine:
		return math.Sin(2 * math.Pi * cycles)
	default:
		_, phase := math.Modf(cycles)
		if phase < 0.5 {
			return 1
		}

		return -1
	}
}

// toPCM clamps a mixed sample and scales it to int16.
func toPCM(sample float64) int16 {
	sample = max(-1, min(1, sample))

	return int16(math.Round(sample * fullScale))
}
