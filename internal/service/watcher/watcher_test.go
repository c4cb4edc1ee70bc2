package watcher

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"path/filepath"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/sleepwatch/internal/alarm"
	"github.com/oshokin/sleepwatch/internal/audio/mock"
	"github.com/oshokin/sleepwatch/internal/capture"
	domain "github.com/oshokin/sleepwatch/internal/domain/alarm"
	"github.com/oshokin/sleepwatch/internal/domain/detection"
	"github.com/oshokin/sleepwatch/internal/repository/history"
)

var errTestTransport = errors.New("connection refused")

// staticSource returns the same tiny PNG on every capture.
type staticSource struct {
	data []byte
	err  error
}

func newStaticSource(t *testing.T) *staticSource {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))))

	return &staticSource{data: buf.Bytes()}
}

func (s *staticSource) Name() string { return "test-camera" }

func (s *staticSource) Capture(context.Context) (*capture.Frame, error) {
	if s.err != nil {
		return nil, s.err
	}

	return &capture.Frame{Data: s.data, Source: s.Name(), CapturedAt: time.Now()}, nil
}

// verdict is one scripted classifier answer.
type verdict struct {
	result *detection.Result
	err    error
}

// scriptedClassifier answers with queued verdicts, repeating the last one.
type scriptedClassifier struct {
	mu       sync.Mutex
	verdicts []verdict
	last     verdict
	calls    int
	images   []string
	// gate, when set, blocks every call until it receives a value or is closed.
	gate chan struct{}
}

func (c *scriptedClassifier) push(result *detection.Result, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.verdicts = append(c.verdicts, verdict{result: result, err: err})
}

func (c *scriptedClassifier) Classify(ctx context.Context, image string) (*detection.Result, error) {
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	c.images = append(c.images, image)

	if len(c.verdicts) > 0 {
		c.last = c.verdicts[0]
		c.verdicts = c.verdicts[1:]
	}

	next := c.last
	if next.err != nil {
		return nil, next.err
	}

	result := *next.result

	return &result, nil
}

func (c *scriptedClassifier) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls
}

// recordingPresenter stores every update.
type recordingPresenter struct {
	mu         sync.Mutex
	detections []detection.Result
	states     []*domain.State
	actions    []*domain.State
}

func (p *recordingPresenter) PresentDetection(_ context.Context, result *detection.Result, state *domain.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.detections = append(p.detections, *result)
	p.states = append(p.states, state)
}

func (p *recordingPresenter) PresentAlarm(_ context.Context, state *domain.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.actions = append(p.actions, state)
}

// countingRecorder counts loop measurements.
type countingRecorder struct {
	mu       sync.Mutex
	observed int
	skipped  int
}

func (r *countingRecorder) ObserveDetection(*detection.Result, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.observed++
}

func (r *countingRecorder) TickSkipped() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.skipped++
}

func sleeping() *detection.Result {
	return &detection.Result{Status: detection.StatusSleeping, Confidence: detection.ConfidenceHigh, Details: "eyes closed"}
}

func awake() *detection.Result {
	return &detection.Result{Status: detection.StatusAwake, Confidence: detection.ConfidenceMedium, Details: ""}
}

// fixture is a loop wired to a real engine on a mock backend.
type fixture struct {
	backend    *mock.Backend
	engine     *alarm.Engine
	controller *Controller
	classifier *scriptedClassifier
	presenter  *recordingPresenter
	recorder   *countingRecorder
	loop       *Loop
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		backend:    &mock.Backend{AutoFinish: true},
		classifier: new(scriptedClassifier),
		presenter:  new(recordingPresenter),
		recorder:   new(countingRecorder),
	}

	f.engine = alarm.New(f.backend)
	f.controller = NewController(f.engine, nil, nil)
	f.controller.AddPresenter(f.presenter)
	f.loop = NewLoop(newStaticSource(t), f.classifier, f.controller, time.Second, WithRecorder(f.recorder))

	return f
}

// TestLoop_SleepingStartsAlarm checks that a sleeping verdict starts the alarm.
func TestLoop_SleepingStartsAlarm(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		f := newFixture(t)
		f.classifier.push(sleeping(), nil)

		require.False(t, f.engine.IsAlarmPlaying())

		result := f.loop.RunOnce(ctx)
		require.NotNil(t, result)
		require.Equal(t, detection.StatusSleeping, result.Status)
		require.Equal(t, "test-camera", result.Source)
		require.True(t, f.engine.IsAlarmPlaying())

		latest, ok := f.controller.history.Latest()
		require.True(t, ok)
		require.Equal(t, "eyes closed", latest.Details)

		require.Len(t, f.presenter.detections, 1)
		require.True(t, f.presenter.states[0].IsPlaying)

		// The classifier received a data URI.
		require.Contains(t, f.classifier.images[0], capture.DataURIPrefix)

		f.engine.Stop(ctx)
	})
}

// TestLoop_AwakeStopsAlarm checks that an awake verdict stops a playing alarm and drops its tones.
func TestLoop_AwakeStopsAlarm(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		f := newFixture(t)
		f.classifier.push(sleeping(), nil)
		f.classifier.push(awake(), nil)

		f.loop.RunOnce(ctx)
		require.True(t, f.engine.IsAlarmPlaying())
		require.Positive(t, f.engine.Snapshot().ActiveTones)

		f.loop.RunOnce(ctx)
		require.False(t, f.engine.IsAlarmPlaying())
		require.Zero(t, f.engine.Snapshot().ActiveTones)

		// No tone is scheduled after the stop.
		scheduled := len(f.backend.LastContext().Tones())
		time.Sleep(5 * time.Second)
		require.Len(t, f.backend.LastContext().Tones(), scheduled)
	})
}

// TestLoop_FailureLeavesAlarmUnchanged checks transport errors and error verdicts in both alarm states.
func TestLoop_FailureLeavesAlarmUnchanged(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		f := newFixture(t)

		// Idle alarm stays idle.
		f.classifier.push(nil, errTestTransport)
		result := f.loop.RunOnce(ctx)
		require.Equal(t, detection.StatusError, result.Status)
		require.Equal(t, detection.ConfidenceNone, result.Confidence)
		require.Contains(t, result.Details, "connection refused")
		require.False(t, f.engine.IsAlarmPlaying())

		// Playing alarm keeps playing through a transport error and an error verdict.
		f.classifier.push(sleeping(), nil)
		f.classifier.push(nil, errTestTransport)
		f.classifier.push(&detection.Result{Status: detection.StatusError, Confidence: detection.ConfidenceNone}, nil)

		f.loop.RunOnce(ctx)
		require.True(t, f.engine.IsAlarmPlaying())

		f.loop.RunOnce(ctx)
		require.True(t, f.engine.IsAlarmPlaying())

		f.loop.RunOnce(ctx)
		require.True(t, f.engine.IsAlarmPlaying())

		// Every outcome is in the history, newest first.
		statuses := make([]detection.Status, 0, 4)
		for _, entry := range f.controller.History(ctx) {
			statuses = append(statuses, entry.Status)
		}

		require.Equal(t, []detection.Status{
			detection.StatusError,
			detection.StatusError,
			detection.StatusSleeping,
			detection.StatusError,
		}, statuses)

		f.engine.Stop(ctx)
	})
}

// TestLoop_CaptureFailure reports a broken source as an error result.
func TestLoop_CaptureFailure(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		f := newFixture(t)
		source := newStaticSource(t)
		source.err = errors.New("camera offline")
		f.loop.source = source

		result := f.loop.RunOnce(ctx)
		require.Equal(t, detection.StatusError, result.Status)
		require.Equal(t, "test-camera", result.Source)
		require.Zero(t, f.classifier.callCount())
		require.Equal(t, 1, f.recorder.observed)
	})
}

// TestLoop_SingleFlight skips triggers while a cycle is outstanding.
func TestLoop_SingleFlight(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		f := newFixture(t)
		f.classifier.gate = make(chan struct{})
		f.classifier.push(awake(), nil)

		require.True(t, f.loop.Trigger(ctx))
		synctest.Wait()

		require.False(t, f.loop.Trigger(ctx))
		require.Nil(t, f.loop.RunOnce(ctx))
		require.Equal(t, 2, f.recorder.skipped)

		f.classifier.gate <- struct{}{}
		synctest.Wait()
		require.Equal(t, 1, f.classifier.callCount())

		close(f.classifier.gate)
		require.True(t, f.loop.Trigger(ctx))
		synctest.Wait()
		require.Equal(t, 2, f.classifier.callCount())
	})
}

// TestLoop_Run polls on every tick and returns on cancellation.
func TestLoop_Run(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		f := newFixture(t)
		f.classifier.push(awake(), nil)

		done := make(chan error, 1)
		go func() {
			done <- f.loop.Run(ctx)
		}()

		time.Sleep(2500 * time.Millisecond)
		cancel()

		require.NoError(t, <-done)
		require.Equal(t, 3, f.classifier.callCount())
		require.Equal(t, 1, f.backend.CallCountOpen, "starting the loop unlocks audio")
	})
}

// TestLoop_RunSingleShot returns after one cycle.
func TestLoop_RunSingleShot(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newFixture(t)
		f.classifier.push(awake(), nil)
		f.loop.once = true

		require.NoError(t, f.loop.Run(context.Background()))
		require.Equal(t, 1, f.classifier.callCount())
	})
}

// TestController_StopAlarm silences the alarm regardless of the last result and records the actor.
func TestController_StopAlarm(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		f := newFixture(t)
		f.classifier.push(sleeping(), nil)
		f.loop.RunOnce(ctx)
		require.True(t, f.engine.IsAlarmPlaying())

		actor := &domain.Actor{Hostname: "desk", Username: "night-owl"}
		state := f.controller.StopAlarm(ctx, actor)

		require.False(t, state.IsPlaying)
		require.Zero(t, state.ActiveTones)
		require.Equal(t, actor, state.LastActor)
		require.Len(t, f.presenter.actions, 1)

		// The last detection was sleeping, yet the alarm stays off.
		require.False(t, f.controller.State(ctx).IsPlaying)
	})
}

// TestController_PlayTestTone plays one tone without changing the alarm state.
func TestController_PlayTestTone(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		f := newFixture(t)

		state := f.controller.PlayTestTone(ctx, &domain.Actor{Hostname: "desk", Username: "tester"})
		require.False(t, state.IsPlaying)
		require.Equal(t, 1, state.ActiveTones)

		tones := f.backend.LastContext().Tones()
		require.Len(t, tones, 1)
		require.InDelta(t, TestToneFrequency, tones[0].Frequency, 1e-9)
		require.Equal(t, TestToneDuration, tones[0].Stop-tones[0].Start)

		// The tone ends on its own.
		time.Sleep(time.Second)
		synctest.Wait()
		require.Zero(t, f.controller.State(ctx).ActiveTones)
		require.False(t, f.engine.IsAlarmPlaying())
	})
}

// TestController_PersistsHistory saves every result and restores it in a new controller.
func TestController_PersistsHistory(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		repo := history.NewFileRepository(filepath.Join(t.TempDir(), "history.json"))
		engine := alarm.New(&mock.Backend{AutoFinish: true})
		controller := NewController(engine, detection.NewHistory(3), repo)

		require.NoError(t, controller.Restore(ctx))
		require.Empty(t, controller.History(ctx))

		for range 4 {
			controller.Apply(ctx, awake())
		}

		controller.Apply(ctx, &detection.Result{
			Status:     detection.StatusError,
			Confidence: detection.ConfidenceNone,
			Details:    "timeout",
		})

		restored := NewController(engine, detection.NewHistory(3), repo)
		require.NoError(t, restored.Restore(ctx))

		entries := restored.History(ctx)
		require.Len(t, entries, 3)
		require.Equal(t, "timeout", entries[0].Details)
	})
}
