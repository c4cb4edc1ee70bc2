package alarm

import "time"

// Actor identifies who performed an action in the system.
type Actor struct {
	// Hostname is the machine name where the action was performed.
	Hostname string
	// Username is the system user who triggered the action.
	Username string
}

// Clone returns a deep copy of the actor.
func (a *Actor) Clone() *Actor {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}

// String renders the actor as username@hostname.
func (a *Actor) String() string {
	if a == nil {
		return "<unknown>"
	}

	return a.Username + "@" + a.Hostname
}

// State is a point-in-time view of the alarm engine.
type State struct {
	// ChangedAt is when the alarm last started or stopped.
	ChangedAt time.Time
	// LastActor is who last stopped the alarm or played a test tone by hand.
	LastActor *Actor
	// Backend names the audio backend in use.
	Backend string
	// AudioState is the audio context state, or "none" before the first user action.
	AudioState string
	// ActiveTones is the number of tones currently scheduled or sounding.
	ActiveTones int
	// IsPlaying indicates whether the alarm pattern is repeating.
	IsPlaying bool
	// Degraded indicates that audio is unavailable and the alarm is silent.
	Degraded bool
}

// Clone returns a copy of the state to avoid leaking internal references.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}

	cloned := *s
	cloned.LastActor = s.LastActor.Clone()

	return &cloned
}
