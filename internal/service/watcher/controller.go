package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oshokin/sleepwatch/internal/alarm"
	domain "github.com/oshokin/sleepwatch/internal/domain/alarm"
	"github.com/oshokin/sleepwatch/internal/domain/detection"
	"github.com/oshokin/sleepwatch/internal/logger"
	"github.com/oshokin/sleepwatch/internal/repository/history"
)

const (
	// TestToneFrequency is the pitch of the test sound.
	TestToneFrequency = 880
	// TestToneDuration is the length of the test sound.
	TestToneDuration = 200 * time.Millisecond
	// TestToneVolume is the gain of the test sound.
	TestToneVolume = 0.5
)

// Presenter renders watcher updates on a user-facing surface.
type Presenter interface {
	// PresentDetection shows a new detection result and the alarm state it led to.
	PresentDetection(ctx context.Context, result *detection.Result, state *domain.State)
	// PresentAlarm shows an alarm state change caused by a user action.
	PresentAlarm(ctx context.Context, state *domain.State)
}

// Controller owns the decisions taken on detection results and user actions.
type Controller struct {
	// engine sounds the alarm.
	engine *alarm.Engine
	// history keeps the latest results for display.
	history *detection.History
	// repo persists history; nil keeps it in memory only.
	repo history.Repository

	// mu protects presenters and lastActor.
	mu sync.RWMutex
	// presenters receive every update.
	presenters []Presenter
	// lastActor is who last stopped the alarm or tested the sound by hand.
	lastActor *domain.Actor
}

// NewController wires an engine and a history. repo may be nil.
func NewController(engine *alarm.Engine, results *detection.History, repo history.Repository) *Controller {
	if results == nil {
		results = detection.NewHistory(detection.DefaultHistoryCapacity)
	}

	return &Controller{
		engine:  engine,
		history: results,
		repo:    repo,
	}
}

// AddPresenter registers a presenter for subsequent updates.
func (c *Controller) AddPresenter(presenter Presenter) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.presenters = append(c.presenters, presenter)
}

// Restore loads persisted history. A missing file is not an error.
func (c *Controller) Restore(ctx context.Context) error {
	if c.repo == nil {
		return nil
	}

	results, err := c.repo.Load(ctx)
	switch {
	case err == nil:
		c.history.Restore(results)
		logger.InfoKV(ctx, "Detection history restored", "entries", c.history.Len())
	case errors.Is(err, history.ErrNotFound):
		// Keep empty history.
	default:
		return fmt.Errorf("load history: %w", err)
	}

	return nil
}

// State returns the alarm state with the last manual actor.
func (c *Controller) State(_ context.Context) *domain.State {
	state := c.engine.Snapshot()

	c.mu.RLock()
	state.LastActor = c.lastActor.Clone()
	c.mu.RUnlock()

	return state
}

// History returns recent detections, newest first.
func (c *Controller) History(_ context.Context) []detection.Result {
	return c.history.List()
}

// Apply acts on a detection result: sleeping starts the alarm, awake stops
// it and an error verdict leaves it as it is. The result is recorded and
// presented in every case.
func (c *Controller) Apply(ctx context.Context, result *detection.Result) *domain.State {
	switch result.Status {
	case detection.StatusSleeping:
		c.engine.Start(ctx)
	case detection.StatusAwake:
		c.engine.Stop(ctx)
	default:
		logger.WarnKV(ctx, "Detection failed, alarm left unchanged",
			"details", result.Details,
			"alarm_playing", c.engine.IsAlarmPlaying(),
		)
	}

	c.record(ctx, result)

	state := c.State(ctx)

	for _, presenter := range c.snapshotPresenters() {
		presenter.PresentDetection(ctx, result, state)
	}

	return state
}

// StopAlarm silences the alarm regardless of the last detection.
func (c *Controller) StopAlarm(ctx context.Context, actor *domain.Actor) *domain.State {
	c.engine.Stop(ctx)

	logger.InfoKV(ctx, "Alarm stopped by hand", "actor", actor.String())

	return c.presentAction(ctx, actor)
}

// PlayTestTone plays one short tone without touching the alarm.
func (c *Controller) PlayTestTone(ctx context.Context, actor *domain.Actor) *domain.State {
	c.engine.InitAudio(ctx)
	c.engine.PlayTone(ctx, TestToneFrequency, TestToneDuration, alarm.WithVolume(TestToneVolume))

	logger.InfoKV(ctx, "Test tone played", "actor", actor.String())

	return c.presentAction(ctx, actor)
}

func (c *Controller) presentAction(ctx context.Context, actor *domain.Actor) *domain.State {
	c.mu.Lock()
	if actor != nil {
		c.lastActor = actor.Clone()
	}
	c.mu.Unlock()

	state := c.State(ctx)

	for _, presenter := range c.snapshotPresenters() {
		presenter.PresentAlarm(ctx, state)
	}

	return state
}

// record adds result to the history and persists it.
func (c *Controller) record(ctx context.Context, result *detection.Result) {
	c.history.Add(*result)

	if c.repo == nil {
		return
	}

	if err := c.repo.Save(ctx, c.history.List()); err != nil {
		logger.ErrorKV(ctx, "Failed to persist detection history", "error", err)
	}
}

func (c *Controller) snapshotPresenters() []Presenter {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]Presenter(nil), c.presenters...)
}
