package audio

import (
	"context"
	"errors"
	"time"
)

// State describes the lifecycle of a Context.
type State int

const (
	// StateSuspended means the context exists but its clock is halted.
	StateSuspended State = iota
	// StateRunning means the context renders audio and its clock advances.
	StateRunning
	// StateClosed means the context released its device and cannot be reused.
	StateClosed
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateSuspended:
		return "suspended"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Waveform selects the oscillator shape of a Tone.
type Waveform int

const (
	// WaveSquare is a harmonic-rich square wave, the alarm's signature timbre.
	WaveSquare Waveform = iota
	// WaveSine is a pure sine wave.
	WaveSine
)

var (
	// ErrVoiceStopped is returned by Voice.Stop when the voice already finished.
	ErrVoiceStopped = errors.New("voice already stopped")
	// ErrContextClosed is returned when scheduling on a closed context.
	ErrContextClosed = errors.New("audio context closed")
	// ErrInvalidTone is returned when a tone has an empty or inverted time span.
	ErrInvalidTone = errors.New("invalid tone")
)

// Tone is one oscillator routed through a gain envelope into the destination.
// Start and Stop are expressed on the owning Context's clock.
type Tone struct {
	// Frequency is the oscillator frequency in Hz.
	Frequency float64
	// Waveform is the oscillator shape.
	Waveform Waveform
	// Start is the context time at which the oscillator starts.
	Start time.Duration
	// Stop is the context time at which the oscillator stops on its own.
	Stop time.Duration
	// Envelope is the gain automation applied to the oscillator output.
	Envelope Envelope
}

// Validate reports whether the tone can be scheduled.
func (t *Tone) Validate() error {
	if t.Frequency <= 0 {
		return errors.Join(ErrInvalidTone, errors.New("frequency must be positive"))
	}

	if t.Stop <= t.Start {
		return errors.Join(ErrInvalidTone, errors.New("stop must be after start"))
	}

	return t.Envelope.Validate()
}

// Voice is a scheduled tone owned by whoever scheduled it.
type Voice interface {
	// Stop silences the voice immediately.
	// It returns ErrVoiceStopped when the voice already ended.
	Stop() error
	// Done is closed once the voice ended, naturally or through Stop.
	Done() <-chan struct{}
}

// Context is the real-time audio subsystem handle.
type Context interface {
	// State returns the current lifecycle state.
	State() State
	// Resume moves a suspended context to the running state.
	Resume(ctx context.Context) error
	// CurrentTime returns the monotonic context clock.
	CurrentTime() time.Duration
	// Schedule registers a tone for playback and returns its voice.
	// It never blocks on playback.
	Schedule(tone Tone) (Voice, error)
	// Close stops every voice and releases the output device.
	Close() error
}

// Backend opens audio contexts on a concrete output.
type Backend interface {
	// Name identifies the backend in logs and status reports.
	Name() string
	// Open creates a new context.
	Open(ctx context.Context) (Context, error)
}
