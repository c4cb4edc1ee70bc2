// Package speaker plays the software mixer on the platform's default output
// device through oto.
//
// oto allows a single device context per process, so a Backend opens the
// device once and hands out mixer contexts that share it.
package speaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/oshokin/sleepwatch/internal/audio"
	"github.com/oshokin/sleepwatch/internal/audio/synth"
)

const (
	// DefaultBufferSize is the device buffer; it bounds how far the mixer clock
	// runs ahead of what is audible.
	DefaultBufferSize = 50 * time.Millisecond

	// channelCount matches the mono output of the mixer.
	channelCount = 1
)

// Backend opens mixer contexts on the default output device.
type Backend struct {
	// sampleRate is the device and mixer rate.
	sampleRate int
	// bufferSize is the device buffer duration.
	bufferSize time.Duration

	// mu protects device and ready.
	mu sync.Mutex
	// device is the process-wide oto context, nil until first Open.
	device *oto.Context
	// ready is closed by oto once the device is usable.
	ready chan struct{}
}

// Option configures a Backend.
type Option func(*Backend)

// WithSampleRate overrides synth.DefaultSampleRate.
func WithSampleRate(rate int) Option {
	return func(b *Backend) {
		if rate > 0 {
			b.sampleRate = rate
		}
	}
}

// WithBufferSize overrides DefaultBufferSize.
func WithBufferSize(size time.Duration) Option {
	return func(b *Backend) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

// New creates a speaker backend. The device is not touched until Open.
func New(opts ...Option) *Backend {
	b := &Backend{
		sampleRate: synth.DefaultSampleRate,
		bufferSize: DefaultBufferSize,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Name implements audio.Backend.
func (b *Backend) Name() string {
	return "speaker"
}

// Open implements audio.Backend. It starts a player that continuously pulls
// from a fresh mixer, so the mixer clock advances in real time.
func (b *Backend) Open(ctx context.Context) (audio.Context, error) {
	device, err := b.openDevice(ctx)
	if err != nil {
		return nil, err
	}

	mixer := synth.New(synth.WithSampleRate(b.sampleRate))

	player := device.NewPlayer(mixer)
	player.Play()

	return &Context{
		Context: mixer,
		device:  device,
		player:  player,
	}, nil
}

// openDevice creates the oto context on first use and waits until it is ready.
func (b *Backend) openDevice(ctx context.Context) (*oto.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.device == nil {
		device, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   b.sampleRate,
			ChannelCount: channelCount,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   b.bufferSize,
		})
		if err != nil {
			return nil, fmt.Errorf("open sound device: %w", err)
		}

		b.device = device
		b.ready = ready
	}

	select {
	case <-b.ready:
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for sound device: %w", ctx.Err())
	}

	if err := b.device.Err(); err != nil {
		return nil, fmt.Errorf("sound device: %w", err)
	}

	return b.device, nil
}

// Context is a mixer context bound to the sound device.
type Context struct {
	*synth.Context

	// device is the shared oto context.
	device *oto.Context
	// player pulls samples from the mixer.
	player *oto.Player
}

// Resume implements audio.Context. It resumes the device as well as the mixer,
// since the platform may have suspended output on its own.
func (c *Context) Resume(ctx context.Context) error {
	if err := c.device.Resume(); err != nil {
		return fmt.Errorf("resume sound device: %w", err)
	}

	return c.Context.Resume(ctx)
}

// Close implements audio.Context. The shared device stays open for later contexts.
func (c *Context) Close() error {
	closeErr := c.player.Close()

	if err := c.Context.Close(); err != nil {
		return err
	}

	if closeErr != nil {
		return fmt.Errorf("close player: %w", closeErr)
	}

	return nil
}
