package audio

import (
	"errors"
	"fmt"
	"time"
)

// Point is one breakpoint of an Envelope. Gain ramps linearly between points.
type Point struct {
	// At is the context time of the breakpoint.
	At time.Duration
	// Gain is the amplitude reached at At, in [0, 1].
	Gain float64
}

// Envelope is a piecewise-linear gain automation.
// Before the first point the gain is that of the first point, after the last
// point it is that of the last point.
type Envelope []Point

// errEnvelopeOrder is returned when breakpoints go backwards in time.
var errEnvelopeOrder = errors.New("envelope breakpoints must not go backwards in time")

// Validate checks that breakpoints are ordered and gains are in range.
func (e Envelope) Validate() error {
	for i, p := range e {
		if p.Gain < 0 || p.Gain > 1 {
			return fmt.Errorf("envelope point %d: gain %.3f out of range: %w", i, p.Gain, ErrInvalidTone)
		}

		if i > 0 && p.At < e[i-1].At {
			return fmt.Errorf("envelope point %d: %w", i, errEnvelopeOrder)
		}
	}

	return nil
}

// GainAt evaluates the envelope at context time t.
func (e Envelope) GainAt(t time.Duration) float64 {
	if len(e) == 0 {
		return 1
	}

	if t <= e[0].At {
		return e[0].Gain
	}

	for i := 1; i < len(e); i++ {
		next := e[i]
		if t > next.At {
			continue
		}

		prev := e[i-1]

		span := next.At - prev.At
		if span <= 0 {
			return next.Gain
		}

		ratio := float64(t-prev.At) / float64(span)

		return prev.Gain + (next.Gain-prev.Gain)*ratio
	}

	return e[len(e)-1].Gain
}
