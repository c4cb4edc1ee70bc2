package watcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/mitchellh/go-ps"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/oshokin/sleepwatch/internal/alarm"
	"github.com/oshokin/sleepwatch/internal/api/grpc/control"
	"github.com/oshokin/sleepwatch/internal/api/web"
	"github.com/oshokin/sleepwatch/internal/audio"
	"github.com/oshokin/sleepwatch/internal/audio/beeper"
	"github.com/oshokin/sleepwatch/internal/audio/speaker"
	"github.com/oshokin/sleepwatch/internal/capture"
	"github.com/oshokin/sleepwatch/internal/classifier"
	"github.com/oshokin/sleepwatch/internal/config"
	"github.com/oshokin/sleepwatch/internal/domain/detection"
	"github.com/oshokin/sleepwatch/internal/logger"
	"github.com/oshokin/sleepwatch/internal/metrics"
	"github.com/oshokin/sleepwatch/internal/repository/history"
	"github.com/oshokin/sleepwatch/internal/version"
)

// Options controls the sleepwatch-watcher process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ClassifierURL overrides the detector base URL.
	ClassifierURL string
	// ListenAddress overrides the gRPC control listen address.
	ListenAddress string
	// HTTPAddress overrides the HTTP API listen address.
	HTTPAddress string
	// File classifies a local image instead of polling the camera.
	File string
	// SnapshotURL overrides the camera snapshot URL.
	SnapshotURL string
	// HistoryFile overrides the path of the persisted history.
	HistoryFile string
	// AudioBackend overrides the audio backend.
	AudioBackend string
	// Interval overrides the poll interval.
	Interval time.Duration
	// Once stops polling after the first detection.
	Once bool
	// AllowMultiple skips the single-instance guard.
	AllowMultiple bool
}

const (
	// silencePollInterval is how often a single-shot run checks whether the alarm was stopped.
	silencePollInterval = 250 * time.Millisecond
)

var (
	// ErrNoSource indicates that neither a file nor a camera was configured.
	ErrNoSource = errors.New("no image source configured, pass --file or set camera.snapshot_url")
	// ErrNoServerAddress indicates missing control address configuration.
	ErrNoServerAddress = errors.New("no control address configured")
)

// Run starts the watcher and blocks until the context is cancelled or, in
// single-shot mode, until the detection is handled and the alarm is silent.
//
//nolint:funlen // Wiring of every component happens here.
func Run(ctx context.Context, opts *Options) error {
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if err = logger.Configure(settings.LogLevel, settings.LogFormat); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}

	// Named after Configure so the context logger uses the configured format.
	ctx = logger.WithName(ctx, "sleepwatch-watcher")
	applyOverrides(settings, opts)

	if !opts.AllowMultiple {
		if err = ensureSingleInstance(ps.Processes, currentExecutable(), os.Getpid()); err != nil {
			return err
		}
	}

	source, err := newSource(settings, opts.File)
	if err != nil {
		return err
	}

	listenAddress, err := resolveListenAddress(settings.ControlAddress, opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("resolve listen address: %w", err)
	}

	collector := metrics.New()
	engine := alarm.New(newBackend(settings.Audio), alarm.WithObserver(collector))

	// Releasing the device must not depend on the cancelled run context.
	defer engine.Close(context.WithoutCancel(ctx))

	controller := NewController(engine,
		detection.NewHistory(detection.DefaultHistoryCapacity),
		history.NewFileRepository(settings.HistoryFile),
	)

	if err = controller.Restore(ctx); err != nil {
		logger.WarnKV(ctx, "Starting with empty history", "error", err)
	}

	hub := web.NewHub()
	controller.AddPresenter(hub)
	controller.AddPresenter(logPresenter{})

	loopOptions := []LoopOption{
		WithRecorder(collector),
		WithMaxWidth(settings.Camera.MaxWidth),
	}

	// An uploaded file is classified once, like a manual upload.
	singleShot := opts.Once || opts.File != ""
	if singleShot {
		loopOptions = append(loopOptions, WithSingleShot())
	}

	loop := NewLoop(source,
		classifier.NewClient(settings.ClassifierURL, settings.ClassifierTimeout),
		controller,
		settings.PollInterval,
		loopOptions...,
	)

	lc := net.ListenConfig{}

	controlListener, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	var httpListener net.Listener

	if settings.HTTPAddress != "" {
		httpListener, err = lc.Listen(ctx, "tcp", settings.HTTPAddress)
		if err != nil {
			_ = controlListener.Close()
			return fmt.Errorf("listen on %s: %w", settings.HTTPAddress, err)
		}
	}

	logger.InfoKV(ctx, "Watcher starting",
		"version", version.Short(),
		"source", source.Name(),
		"classifier_url", settings.ClassifierURL,
		"control_address", listenAddress,
		"http_address", settings.HTTPAddress,
		"history_file", settings.HistoryFile,
		"audio_backend", settings.Audio.Backend,
	)

	group, groupCtx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(groupCtx)

	defer cancel()

	group.Go(func() error {
		if err := loop.Run(runCtx); err != nil {
			return fmt.Errorf("run detection loop: %w", err)
		}

		if singleShot {
			waitForSilence(runCtx, controller)
			cancel()
		}

		return nil
	})

	group.Go(func() error {
		return serveControl(runCtx, controlListener, controller)
	})

	if httpListener != nil {
		handler := web.NewHandler(runCtx, controller, hub, web.WithMetrics(collector.Handler()))

		group.Go(func() error {
			return web.Serve(runCtx, httpListener, handler, hub)
		})
	}

	if err = group.Wait(); err != nil {
		return err
	}

	logger.Info(ctx, "Watcher stopped")

	return nil
}

// applyOverrides merges command-line values into settings.
func applyOverrides(settings *config.Config, opts *Options) {
	if opts.ClassifierURL != "" {
		settings.ClassifierURL = opts.ClassifierURL
	}

	if opts.HTTPAddress != "" {
		settings.HTTPAddress = opts.HTTPAddress
	}

	if opts.SnapshotURL != "" {
		settings.Camera.SnapshotURL = opts.SnapshotURL
	}

	if opts.HistoryFile != "" {
		settings.HistoryFile = opts.HistoryFile
	}

	if opts.AudioBackend != "" {
		settings.Audio.Backend = opts.AudioBackend
	}

	if opts.Interval > 0 {
		settings.PollInterval = opts.Interval
	}
}

// newSource picks the file when given, the camera otherwise.
func newSource(settings *config.Config, file string) (capture.Source, error) {
	switch {
	case file != "":
		return capture.NewFileSource(file), nil
	case settings.Camera.SnapshotURL != "":
		return capture.NewSnapshotSource(settings.Camera.SnapshotURL, &http.Client{Timeout: settings.Timeout}), nil
	default:
		return nil, ErrNoSource
	}
}

// newBackend returns the configured audio backend, or nil for silent operation.
func newBackend(settings config.AudioConfig) audio.Backend {
	switch settings.Backend {
	case "beep":
		return beeper.New()
	case "none":
		return nil
	default:
		return speaker.New(
			speaker.WithSampleRate(settings.SampleRate),
			speaker.WithBufferSize(settings.BufferSize),
		)
	}
}

// resolveListenAddress determines the listen address for the gRPC server.
// If override is provided, uses it directly. Otherwise extracts port from configAddr.
func resolveListenAddress(configAddr, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if configAddr == "" {
		return "", ErrNoServerAddress
	}

	_, port, err := net.SplitHostPort(configAddr)
	if err != nil {
		return "", fmt.Errorf("invalid control address format %q: %w", configAddr, err)
	}

	// Bind on all interfaces so other machines can stop the alarm.
	return ":" + port, nil
}

// serveControl runs the gRPC control service on lis until ctx is cancelled.
func serveControl(ctx context.Context, lis net.Listener, service control.Service) error {
	grpcServer := grpc.NewServer()
	control.RegisterAlarmControlServer(grpcServer, control.NewServer(service))

	logger.InfoKV(ctx, "Control service listening", "listen_address", lis.Addr().String())

	// Done channel is closed after GracefulStop finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down gRPC server")
		grpcServer.GracefulStop()
		close(done)
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "GRPC server stopped")

	return nil
}

// waitForSilence blocks while the alarm plays so a remote stop can end it.
func waitForSilence(ctx context.Context, controller *Controller) {
	if !controller.engine.IsAlarmPlaying() {
		return
	}

	logger.Info(ctx, "Alarm is playing, waiting for it to be stopped")

	ticker := time.NewTicker(silencePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !controller.engine.IsAlarmPlaying() {
				return
			}
		}
	}
}
