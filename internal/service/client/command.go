package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/sleepwatch/internal/config"
	domain "github.com/oshokin/sleepwatch/internal/domain/alarm"
	"github.com/oshokin/sleepwatch/internal/logger"
	"github.com/oshokin/sleepwatch/internal/service/common"
)

// Action selects what the control client asks the watcher to do.
type Action string

const (
	// ActionStop silences the alarm.
	ActionStop Action = "stop"
	// ActionTest plays the test sound.
	ActionTest Action = "test"
)

// Options configures the control client.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string

	// ServerAddress overrides the watcher control address from config when specified.
	ServerAddress string

	// Action is the request pushed to the watcher.
	Action Action

	// Attempts bounds the number of tries; zero retries until the context ends.
	Attempts int
}

// defaultPushInterval defines retry delay when pushing a request to the watcher.
const defaultPushInterval = 1 * time.Second

var (
	// errUnknownAction is returned for an Action other than stop or test.
	errUnknownAction = errors.New("unknown action")
	// errAttemptsExhausted is returned once Attempts tries all failed.
	errAttemptsExhausted = errors.New("attempts exhausted")
)

// requester sends one request and returns the resulting alarm state.
type requester func(ctx context.Context, actor *domain.Actor) (*domain.State, error)

// Run pushes the requested action to the watcher, retrying until it succeeds
// or the context is cancelled.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "sleepwatch-alarm-"+string(opts.Action))

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	serverAddress := cfg.ControlAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	// Identify current user and hostname for audit logging.
	actor, err := common.DetectActor()
	if err != nil {
		return err
	}

	client, err := common.Dial(ctx, serverAddress, common.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return err
	}

	defer func() {
		_ = client.Close()
	}()

	var request requester

	switch opts.Action {
	case ActionStop:
		request = client.StopAlarm
	case ActionTest:
		request = client.PlayTestTone
	default:
		return fmt.Errorf("%w: %q", errUnknownAction, opts.Action)
	}

	logger.InfoKV(ctx, "Pushing request to watcher", "server_address", serverAddress, "action", opts.Action)

	return push(ctx, actor, request, opts.Attempts, defaultPushInterval)
}

// push calls request until it succeeds, attempts run out or ctx ends.
func push(ctx context.Context, actor *domain.Actor, request requester, attempts int, interval time.Duration) error {
	tries := 0

	// attempt tries once and reports whether the request went through.
	attempt := func() bool {
		tries++

		state, err := request(ctx, actor)
		if err != nil {
			// Log error but continue retrying for transient failures.
			logger.ErrorKV(ctx, "Request failed", "attempt", tries, "error", err)
			return false
		}

		logger.Infof(ctx, "Watcher answered: %s", formatState(state))

		return true
	}

	if attempt() {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if attempts > 0 && tries >= attempts {
			return fmt.Errorf("push request after %d attempts: %w", tries, errAttemptsExhausted)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if attempt() {
				return nil
			}
		}
	}
}

// formatState converts alarm state to a readable log message.
func formatState(state *domain.State) string {
	if state == nil {
		return "<nil state>"
	}

	timestamp := "<never>"
	if !state.ChangedAt.IsZero() {
		timestamp = state.ChangedAt.Format(time.RFC3339)
	}

	status := "silent"
	if state.IsPlaying {
		status = "playing"
	}

	return fmt.Sprintf("alarm %s since %s, %d tones active, last action by %s",
		status, timestamp, state.ActiveTones, state.LastActor)
}
