package detector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/oshokin/sleepwatch/internal/config"
	"github.com/oshokin/sleepwatch/internal/logger"
	"github.com/oshokin/sleepwatch/internal/version"
	"github.com/oshokin/sleepwatch/internal/vision"
)

// Options controls the sleepwatch-detector process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override.
	ListenAddress string
	// Model provides an optional vision model override.
	Model string
}

const (
	// readHeaderTimeout bounds slow clients.
	readHeaderTimeout = 10 * time.Second
	// shutdownTimeout bounds the graceful shutdown.
	shutdownTimeout = 5 * time.Second
)

// ErrNoAPIKey indicates a missing provider key.
var ErrNoAPIKey = errors.New("no api key configured, set " + config.APIKeyEnv)

// Run starts the HTTP detector and blocks until context is canceled or the server stops.
func Run(ctx context.Context, opts *Options) error {
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if err = logger.Configure(settings.LogLevel, settings.LogFormat); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}

	// Named after Configure so the context logger uses the configured format.
	ctx = logger.WithName(ctx, "sleepwatch-detector")

	detectorSettings := settings.Detector
	if opts.ListenAddress != "" {
		detectorSettings.ListenAddress = opts.ListenAddress
	}

	if opts.Model != "" {
		detectorSettings.Model = opts.Model
	}

	apiKey := detectorSettings.ResolveAPIKey()
	if apiKey == "" {
		return ErrNoAPIKey
	}

	analyzer, err := vision.New(apiKey, detectorSettings.Model,
		vision.WithBaseURL(detectorSettings.BaseURL),
		vision.WithTimeout(settings.ClassifierTimeout),
	)
	if err != nil {
		return fmt.Errorf("create analyzer: %w", err)
	}

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", detectorSettings.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", detectorSettings.ListenAddress, err)
	}

	return Serve(ctx, lis, NewHandler(ctx, analyzer), detectorSettings.Model)
}

// Serve runs handler on lis until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, lis net.Listener, handler http.Handler, model string) error {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.InfoKV(ctx, "Detector listening",
		"version", version.Short(),
		"listen_address", lis.Addr().String(),
		"model", model,
	)

	// Done channel is closed after Shutdown finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		defer close(done)

		<-ctx.Done()
		logger.Info(ctx, "Shutting down detector")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WarnKV(ctx, "Detector shutdown incomplete", "error", err)
		}
	}()

	if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve HTTP: %w", err)
	}

	<-done
	logger.Info(ctx, "Detector stopped")

	return nil
}
