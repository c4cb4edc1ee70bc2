//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/oshokin/sleepwatch/internal/api/grpc/control"
	"github.com/oshokin/sleepwatch/internal/config"
	domain "github.com/oshokin/sleepwatch/internal/domain/alarm"
	"github.com/oshokin/sleepwatch/internal/domain/detection"
)

// Client wraps the AlarmControl gRPC client with convenience helpers.
type Client struct {
	// conn is the underlying gRPC connection to the watcher.
	conn *grpc.ClientConn
	// api is the AlarmControl client stub.
	api control.AlarmControlClient

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

var (
	// errAddressRequired is returned when a required address value is missing.
	errAddressRequired = errors.New("address must be provided")
	// errActorRequired is returned when an actor is not provided but is required for the operation.
	errActorRequired = errors.New("actor must be provided")
)

// Dial prepares a gRPC connection to the watcher's control endpoint.
// Note: this uses insecure transport credentials; deploy on a trusted network.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial watcher: %w", err)
	}

	return newClient(conn, opts...), nil
}

// newClient wraps an established connection.
func newClient(conn *grpc.ClientConn, opts ...Option) *Client {
	client := &Client{
		conn:        conn,
		api:         control.NewAlarmControlClient(conn),
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// GetAlarmState retrieves the current alarm state.
func (c *Client) GetAlarmState(ctx context.Context) (*domain.State, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.GetAlarmState(callCtx, new(emptypb.Empty))
	if err != nil {
		return nil, fmt.Errorf("get alarm state: %w", err)
	}

	return control.StateFromStruct(resp), nil
}

// GetHistory retrieves recent detections, newest first.
func (c *Client) GetHistory(ctx context.Context) ([]detection.Result, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.GetHistory(callCtx, new(emptypb.Empty))
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}

	results, err := control.HistoryFromStruct(resp)
	if err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	return results, nil
}

// StopAlarm silences the remote alarm on behalf of actor.
func (c *Client) StopAlarm(ctx context.Context, actor *domain.Actor) (*domain.State, error) {
	if actor == nil {
		return nil, errActorRequired
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.StopAlarm(callCtx, control.ActorToStruct(actor))
	if err != nil {
		return nil, fmt.Errorf("stop alarm: %w", err)
	}

	return control.StateFromStruct(resp), nil
}

// PlayTestTone plays the test sound on the watcher on behalf of actor.
func (c *Client) PlayTestTone(ctx context.Context, actor *domain.Actor) (*domain.State, error) {
	if actor == nil {
		return nil, errActorRequired
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.PlayTestTone(callCtx, control.ActorToStruct(actor))
	if err != nil {
		return nil, fmt.Errorf("play test tone: %w", err)
	}

	return control.StateFromStruct(resp), nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
