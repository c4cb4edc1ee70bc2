package watcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oshokin/sleepwatch/internal/capture"
	"github.com/oshokin/sleepwatch/internal/classifier"
	"github.com/oshokin/sleepwatch/internal/domain/detection"
	"github.com/oshokin/sleepwatch/internal/logger"
)

// Recorder receives loop measurements, typically to feed metrics.
type Recorder interface {
	// ObserveDetection is called once per completed cycle.
	ObserveDetection(result *detection.Result, elapsed time.Duration)
	// TickSkipped is called when a tick found a cycle still running.
	TickSkipped()
}

// nopRecorder discards every measurement.
type nopRecorder struct{}

func (nopRecorder) ObserveDetection(*detection.Result, time.Duration) {}
func (nopRecorder) TickSkipped()                                      {}

// Loop polls a frame source and feeds classifier verdicts to a Controller.
type Loop struct {
	// source yields frames.
	source capture.Source
	// classifier turns frames into verdicts.
	classifier classifier.Classifier
	// controller acts on verdicts.
	controller *Controller
	// recorder receives measurements.
	recorder Recorder
	// interval is the delay between ticks.
	interval time.Duration
	// maxWidth bounds uploaded frame width.
	maxWidth int
	// once stops after the first cycle.
	once bool

	// busy is set while a cycle is running.
	busy atomic.Bool
	// cycles tracks running cycles so Run can wait for them.
	cycles sync.WaitGroup
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithRecorder registers a measurement recorder.
func WithRecorder(recorder Recorder) LoopOption {
	return func(l *Loop) {
		if recorder != nil {
			l.recorder = recorder
		}
	}
}

// WithMaxWidth downscales frames wider than width before upload.
func WithMaxWidth(width int) LoopOption {
	return func(l *Loop) {
		l.maxWidth = width
	}
}

// WithSingleShot makes Run return after the first cycle.
func WithSingleShot() LoopOption {
	return func(l *Loop) {
		l.once = true
	}
}

// NewLoop creates a loop polling every interval.
func NewLoop(
	source capture.Source,
	client classifier.Classifier,
	controller *Controller,
	interval time.Duration,
	opts ...LoopOption,
) *Loop {
	l := &Loop{
		source:     source,
		classifier: client,
		controller: controller,
		recorder:   nopRecorder{},
		interval:   interval,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Run performs a cycle right away and then one per tick until ctx is
// cancelled. Starting the loop is the user action that unlocks audio.
func (l *Loop) Run(ctx context.Context) error {
	defer l.cycles.Wait()

	logger.InfoKV(ctx, "Detection loop started",
		"source", l.source.Name(),
		"interval", l.interval.String(),
	)

	l.controller.engine.InitAudio(ctx)

	if l.once {
		l.RunOnce(ctx)
		return nil
	}

	l.Trigger(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Detection loop stopped")
			return nil
		case <-ticker.C:
			l.Trigger(ctx)
		}
	}
}

// Trigger starts a cycle in the background unless one is already running.
// It reports whether a cycle was started.
func (l *Loop) Trigger(ctx context.Context) bool {
	if !l.busy.CompareAndSwap(false, true) {
		l.recorder.TickSkipped()
		logger.Debug(ctx, "Previous detection still running, tick skipped")

		return false
	}

	l.cycles.Add(1)

	go func() {
		defer l.cycles.Done()
		defer l.busy.Store(false)

		l.cycle(ctx)
	}()

	return true
}

// RunOnce performs one cycle synchronously. It returns nil without waiting
// when a cycle is already in flight.
func (l *Loop) RunOnce(ctx context.Context) *detection.Result {
	if !l.busy.CompareAndSwap(false, true) {
		l.recorder.TickSkipped()
		return nil
	}
	defer l.busy.Store(false)

	return l.cycle(ctx)
}

// cycle captures, classifies and applies one verdict. Failures become error
// results that leave the alarm untouched.
func (l *Loop) cycle(ctx context.Context) *detection.Result {
	started := time.Now()

	result, err := l.detect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}

		logger.WarnKV(ctx, "Detection failed", "source", l.source.Name(), "error", err)

		failure := detection.Failure(l.source.Name(), time.Now(), err)
		result = &failure
	}

	l.recorder.ObserveDetection(result, time.Since(started))
	l.controller.Apply(ctx, result)

	logger.DebugKV(ctx, "Detection applied",
		"status", result.Status,
		"confidence", result.Confidence,
		"elapsed", time.Since(started).String(),
	)

	return result
}

func (l *Loop) detect(ctx context.Context) (*detection.Result, error) {
	frame, err := l.source.Capture(ctx)
	if err != nil {
		return nil, err
	}

	image, err := capture.Encode(frame, l.maxWidth)
	if err != nil {
		return nil, err
	}

	result, err := l.classifier.Classify(ctx, image)
	if err != nil {
		return nil, err
	}

	result.Source = frame.Source

	return result, nil
}
