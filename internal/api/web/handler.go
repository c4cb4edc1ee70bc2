package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/go-playground/validator/v10"

	domain "github.com/oshokin/sleepwatch/internal/domain/alarm"
	"github.com/oshokin/sleepwatch/internal/domain/detection"
	"github.com/oshokin/sleepwatch/internal/logger"
)

// Routes served by the handler.
const (
	StatusPath    = "/api/status"
	HistoryPath   = "/api/history"
	StopAlarmPath = "/api/alarm/stop"
	TestAlarmPath = "/api/alarm/test"
	EventsPath    = "/ws"
	MetricsPath   = "/metrics"
	HealthPath    = "/healthz"
)

const (
	// maxActionBody bounds the optional actor body of alarm actions.
	maxActionBody = 4 << 10

	// anonymousUser names callers that did not identify themselves.
	anonymousUser = "http"
)

// Service abstracts the watcher operations exposed over HTTP.
type Service interface {
	State(ctx context.Context) *domain.State
	History(ctx context.Context) []detection.Result
	StopAlarm(ctx context.Context, actor *domain.Actor) *domain.State
	PlayTestTone(ctx context.Context, actor *domain.Actor) *domain.State
}

// validate checks action bodies.
var validate = validator.New(validator.WithRequiredStructEnabled())

// errorResponse is the body of every failed request.
type errorResponse struct {
	// Error describes the failure.
	Error string `json:"error"`
}

// historyResponse is the body of GET /api/history.
type historyResponse struct {
	// Results are the recent detections, newest first.
	Results []detection.Result `json:"results"`
}

// HandlerOption configures NewHandler.
type HandlerOption func(*http.ServeMux)

// WithMetrics serves metrics on MetricsPath.
func WithMetrics(metrics http.Handler) HandlerOption {
	return func(mux *http.ServeMux) {
		if metrics != nil {
			mux.Handle("GET "+MetricsPath, metrics)
		}
	}
}

// NewHandler builds the watcher's HTTP routes. Events are streamed from hub.
func NewHandler(ctx context.Context, service Service, hub *Hub, opts ...HandlerOption) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+StatusPath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, NewStateView(service.State(r.Context())))
	})
	mux.HandleFunc("GET "+HistoryPath, func(w http.ResponseWriter, r *http.Request) {
		results := service.History(r.Context())
		if results == nil {
			results = []detection.Result{}
		}

		writeJSON(w, http.StatusOK, historyResponse{Results: results})
	})
	mux.HandleFunc("POST "+StopAlarmPath, func(w http.ResponseWriter, r *http.Request) {
		handleAction(ctx, w, r, service.StopAlarm)
	})
	mux.HandleFunc("POST "+TestAlarmPath, func(w http.ResponseWriter, r *http.Request) {
		handleAction(ctx, w, r, service.PlayTestTone)
	})
	mux.HandleFunc("GET "+EventsPath, func(w http.ResponseWriter, r *http.Request) {
		hub.serveWS(ctx, w, r, Event{Type: EventStatus, State: NewStateView(service.State(r.Context()))})
	})
	mux.HandleFunc("GET "+HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	for _, opt := range opts {
		opt(mux)
	}

	return mux
}

// handleAction runs a user action on behalf of the actor named in the body,
// or of the remote host when the body is empty.
func handleAction(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	action func(context.Context, *domain.Actor) *domain.State,
) {
	actor, err := decodeActor(w, r)
	if err != nil {
		logger.DebugKV(ctx, "Rejected alarm action", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, NewStateView(action(r.Context(), actor)))
}

func decodeActor(w http.ResponseWriter, r *http.Request) (*domain.Actor, error) {
	var body ActorView

	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActionBody)).Decode(&body)

	switch {
	case errors.Is(err, io.EOF):
	case err != nil:
		return nil, err
	default:
		if err = validate.Struct(&body); err != nil {
			return nil, err
		}
	}

	actor := &domain.Actor{
		Hostname: body.Hostname,
		Username: body.Username,
	}

	if actor.Hostname == "" {
		actor.Hostname = r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			actor.Hostname = host
		}
	}

	if actor.Username == "" {
		actor.Username = anonymousUser
	}

	return actor, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(body)
}
