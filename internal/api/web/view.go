package web

import (
	"time"

	domain "github.com/oshokin/sleepwatch/internal/domain/alarm"
	"github.com/oshokin/sleepwatch/internal/domain/detection"
)

// Event types pushed over the WebSocket stream.
const (
	EventStatus    = "status"
	EventDetection = "detection"
	EventAlarm     = "alarm"
)

// ActorView is the JSON form of an actor.
type ActorView struct {
	// Hostname is the machine the action came from.
	Hostname string `json:"hostname" validate:"omitempty,max=255"`
	// Username is the user who triggered the action.
	Username string `json:"username" validate:"omitempty,max=255"`
}

// StateView is the JSON form of the alarm state.
type StateView struct {
	// ChangedAt is when the alarm last started or stopped, nil if never.
	ChangedAt *time.Time `json:"changed_at,omitempty"`
	// LastActor is who last acted on the alarm by hand.
	LastActor *ActorView `json:"last_actor,omitempty"`
	// Backend names the audio backend.
	Backend string `json:"backend"`
	// AudioState is the audio context state.
	AudioState string `json:"audio_state"`
	// ActiveTones counts tones still scheduled or sounding.
	ActiveTones int `json:"active_tones"`
	// IsPlaying reports whether the alarm is on.
	IsPlaying bool `json:"is_playing"`
	// Degraded reports that audio is unavailable.
	Degraded bool `json:"degraded"`
}

// Event is one message of the WebSocket stream.
type Event struct {
	// Type is one of the Event* constants.
	Type string `json:"type"`
	// State is the alarm state after the event.
	State *StateView `json:"state"`
	// Result is the detection that caused the event, set for detection events.
	Result *detection.Result `json:"result,omitempty"`
}

// NewStateView converts a domain state.
func NewStateView(state *domain.State) *StateView {
	if state == nil {
		return nil
	}

	view := &StateView{
		Backend:     state.Backend,
		AudioState:  state.AudioState,
		ActiveTones: state.ActiveTones,
		IsPlaying:   state.IsPlaying,
		Degraded:    state.Degraded,
	}

	if !state.ChangedAt.IsZero() {
		changedAt := state.ChangedAt.UTC()
		view.ChangedAt = &changedAt
	}

	if state.LastActor != nil {
		view.LastActor = &ActorView{
			Hostname: state.LastActor.Hostname,
			Username: state.LastActor.Username,
		}
	}

	return view
}
