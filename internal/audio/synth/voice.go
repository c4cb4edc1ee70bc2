package synth

import "github.com/oshokin/sleepwatch/internal/audio"

// voice is one scheduled oscillator inside a Context.
type voice struct {
	// owner is the context whose mutex guards this voice.
	owner *Context
	// tone is the scheduled oscillator description.
	tone audio.Tone
	// startFrame is the first frame the voice sounds on.
	startFrame int64
	// stopFrame is the first frame after the voice ends.
	stopFrame int64
	// done is closed once the voice ended.
	done chan struct{}
	// finished reports whether done has been closed.
	finished bool
}

// Stop silences the voice.
func (v *voice) Stop() error {
	v.owner.mu.Lock()
	defer v.owner.mu.Unlock()

	if v.finished {
		return audio.ErrVoiceStopped
	}

	v.finishLocked()

	return nil
}

// Done is closed when the voice ended.
func (v *voice) Done() <-chan struct{} {
	return v.done
}

// finishLocked ends the voice. The owner's mutex must be held.
func (v *voice) finishLocked() {
	if v.finished {
		return
	}

	v.finished = true
	close(v.done)
	delete(v.owner.voices, v)
}
