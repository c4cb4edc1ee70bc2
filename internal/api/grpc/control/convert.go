package control

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/oshokin/sleepwatch/internal/domain/alarm"
	"github.com/oshokin/sleepwatch/internal/domain/detection"
	"github.com/oshokin/sleepwatch/internal/repository/history"
)

// Struct field names of the wire messages.
const (
	FieldHostname    = "hostname"
	FieldUsername    = "username"
	FieldChangedAt   = "changed_at"
	FieldLastActor   = "last_actor"
	FieldBackend     = "backend"
	FieldAudioState  = "audio_state"
	FieldActiveTones = "active_tones"
	FieldIsPlaying   = "is_playing"
	FieldDegraded    = "degraded"
	FieldResults     = "results"
)

// ActorToStruct converts a domain Actor to its wire form.
func ActorToStruct(actor *domain.Actor) *structpb.Struct {
	if actor == nil {
		return &structpb.Struct{Fields: map[string]*structpb.Value{}}
	}

	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			FieldHostname: structpb.NewStringValue(actor.Hostname),
			FieldUsername: structpb.NewStringValue(actor.Username),
		},
	}
}

// ActorFromStruct converts a wire actor to a domain Actor. It returns nil
// when neither hostname nor username is set.
func ActorFromStruct(s *structpb.Struct) *domain.Actor {
	fields := s.GetFields()

	actor := &domain.Actor{
		Hostname: fields[FieldHostname].GetStringValue(),
		Username: fields[FieldUsername].GetStringValue(),
	}

	if actor.Hostname == "" && actor.Username == "" {
		return nil
	}

	return actor
}

// StateToStruct converts a domain State to its wire form.
func StateToStruct(state *domain.State) *structpb.Struct {
	if state == nil {
		return &structpb.Struct{Fields: map[string]*structpb.Value{}}
	}

	fields := map[string]*structpb.Value{
		FieldBackend:     structpb.NewStringValue(state.Backend),
		FieldAudioState:  structpb.NewStringValue(state.AudioState),
		FieldActiveTones: structpb.NewNumberValue(float64(state.ActiveTones)),
		FieldIsPlaying:   structpb.NewBoolValue(state.IsPlaying),
		FieldDegraded:    structpb.NewBoolValue(state.Degraded),
	}

	if !state.ChangedAt.IsZero() {
		fields[FieldChangedAt] = structpb.NewStringValue(state.ChangedAt.UTC().Format(time.RFC3339Nano))
	}

	if state.LastActor != nil {
		fields[FieldLastActor] = structpb.NewStructValue(ActorToStruct(state.LastActor))
	}

	return &structpb.Struct{Fields: fields}
}

// StateFromStruct converts a wire state to a domain State. An unparsable
// change time is left zero.
func StateFromStruct(s *structpb.Struct) *domain.State {
	fields := s.GetFields()

	state := &domain.State{
		Backend:     fields[FieldBackend].GetStringValue(),
		AudioState:  fields[FieldAudioState].GetStringValue(),
		ActiveTones: int(fields[FieldActiveTones].GetNumberValue()),
		IsPlaying:   fields[FieldIsPlaying].GetBoolValue(),
		Degraded:    fields[FieldDegraded].GetBoolValue(),
		LastActor:   ActorFromStruct(fields[FieldLastActor].GetStructValue()),
	}

	if raw := fields[FieldChangedAt].GetStringValue(); raw != "" {
		if changedAt, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			state.ChangedAt = changedAt
		}
	}

	return state
}

// HistoryToStruct converts detection results to their wire form.
func HistoryToStruct(results []detection.Result) *structpb.Struct {
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			FieldResults: structpb.NewListValue(history.ToList(results)),
		},
	}
}

// HistoryFromStruct converts a wire history to detection results.
func HistoryFromStruct(s *structpb.Struct) ([]detection.Result, error) {
	return history.FromList(s.GetFields()[FieldResults].GetListValue())
}
