package detection

import (
	"fmt"
	"strings"
	"time"
)

// Status is the classifier's verdict.
type Status string

const (
	// StatusSleeping means the person appears to be asleep.
	StatusSleeping Status = "sleeping"
	// StatusAwake means the person appears to be awake.
	StatusAwake Status = "awake"
	// StatusError means the classifier could not analyse the image.
	StatusError Status = "error"
)

// Confidence is the classifier's confidence label.
type Confidence string

const (
	// ConfidenceHigh is a confident verdict.
	ConfidenceHigh Confidence = "high"
	// ConfidenceMedium is a moderately confident verdict.
	ConfidenceMedium Confidence = "medium"
	// ConfidenceLow is a weak verdict.
	ConfidenceLow Confidence = "low"
	// ConfidenceNone accompanies error verdicts.
	ConfidenceNone Confidence = "none"
)

// ParseStatus normalises a status label.
func ParseStatus(s string) (Status, error) {
	switch status := Status(strings.ToLower(strings.TrimSpace(s))); status {
	case StatusSleeping, StatusAwake, StatusError:
		return status, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// ParseConfidence normalises a confidence label.
func ParseConfidence(s string) (Confidence, error) {
	switch confidence := Confidence(strings.ToLower(strings.TrimSpace(s))); confidence {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow, ConfidenceNone:
		return confidence, nil
	default:
		return "", fmt.Errorf("unknown confidence %q", s)
	}
}

// Result is one classification outcome.
type Result struct {
	// Timestamp is when the result was received.
	Timestamp time.Time `json:"timestamp"`
	// Status is the verdict.
	Status Status `json:"status"`
	// Confidence is the confidence label.
	Confidence Confidence `json:"confidence"`
	// Details is free text from the classifier.
	Details string `json:"details"`
	// Source names the frame source the image came from.
	Source string `json:"source,omitempty"`
}

// IsSleeping reports whether the result should sound the alarm.
func (r *Result) IsSleeping() bool {
	return r != nil && r.Status == StatusSleeping
}

// Failure builds an error result for a capture or transport failure.
func Failure(source string, at time.Time, err error) Result {
	return Result{
		Timestamp:  at,
		Status:     StatusError,
		Confidence: ConfidenceNone,
		Details:    err.Error(),
		Source:     source,
	}
}
