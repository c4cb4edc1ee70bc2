package watcher

import (
	"context"

	domain "github.com/oshokin/sleepwatch/internal/domain/alarm"
	"github.com/oshokin/sleepwatch/internal/domain/detection"
	"github.com/oshokin/sleepwatch/internal/logger"
)

// logPresenter renders updates on the console.
type logPresenter struct{}

// PresentDetection prints the verdict and whether the alarm is active.
func (logPresenter) PresentDetection(ctx context.Context, result *detection.Result, state *domain.State) {
	switch result.Status {
	case detection.StatusSleeping:
		logger.WarnKV(ctx, "SLEEPING detected, alarm active",
			"confidence", result.Confidence,
			"details", result.Details,
			"degraded", state.Degraded,
		)
	case detection.StatusAwake:
		logger.InfoKV(ctx, "Awake", "confidence", result.Confidence, "details", result.Details)
	default:
		logger.ErrorKV(ctx, "Detection error", "details", result.Details, "alarm_playing", state.IsPlaying)
	}
}

// PresentAlarm prints a manual alarm change.
func (logPresenter) PresentAlarm(ctx context.Context, state *domain.State) {
	logger.InfoKV(ctx, "Alarm updated",
		"playing", state.IsPlaying,
		"active_tones", state.ActiveTones,
		"actor", state.LastActor.String(),
	)
}
