package control

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/oshokin/sleepwatch/internal/domain/alarm"
	"github.com/oshokin/sleepwatch/internal/domain/detection"
)

// Service abstracts the watcher operations the transport layer depends on.
type Service interface {
	State(ctx context.Context) *domain.State
	History(ctx context.Context) []detection.Result
	StopAlarm(ctx context.Context, actor *domain.Actor) *domain.State
	PlayTestTone(ctx context.Context, actor *domain.Actor) *domain.State
}

// Server implements the AlarmControl gRPC API.
type Server struct {
	// service provides the watcher operations.
	service Service
}

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
	}
}

// GetAlarmState returns the current alarm state.
func (s *Server) GetAlarmState(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return StateToStruct(s.service.State(ctx)), nil
}

// GetHistory returns recent detections, newest first.
func (s *Server) GetHistory(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return HistoryToStruct(s.service.History(ctx)), nil
}

// StopAlarm silences the alarm.
func (s *Server) StopAlarm(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := requireActor(req)
	if err != nil {
		return nil, err
	}

	return StateToStruct(s.service.StopAlarm(ctx, actor)), nil
}

// PlayTestTone plays the test sound.
func (s *Server) PlayTestTone(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := requireActor(req)
	if err != nil {
		return nil, err
	}

	return StateToStruct(s.service.PlayTestTone(ctx, actor)), nil
}

// requireActor extracts the calling actor, which user actions must carry.
func requireActor(req *structpb.Struct) (*domain.Actor, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	actor := ActorFromStruct(req)
	if actor == nil {
		return nil, status.Error(codes.InvalidArgument, "actor is required")
	}

	return actor, nil
}
