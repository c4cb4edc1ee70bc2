package vision

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oshokin/sleepwatch/internal/classifier"
	"github.com/oshokin/sleepwatch/internal/domain/detection"
)

const (
	defaultDetails = "Analysis completed"
	guessedDetails = "Person appears to be sleeping based on image analysis"
	unclearDetails = "Could not parse model response clearly"
)

// ParseReply interprets the model's answer. Replies are expected to be a JSON
// object, optionally wrapped in a markdown code fence. Missing keys get
// defaults and any status other than sleeping becomes awake. Replies that are
// not JSON are classified by whether they mention sleep.
func ParseReply(reply string) *classifier.Response {
	text := stripCodeFence(strings.TrimSpace(reply))

	var fields map[string]any
	if err := json.Unmarshal([]byte(text), &fields); err != nil || fields == nil {
		return guessFromText(text)
	}

	response := &classifier.Response{
		Status:     string(detection.StatusAwake),
		Confidence: string(detection.ConfidenceLow),
		Details:    defaultDetails,
	}

	if value, ok := fields["status"]; ok {
		status := strings.ToLower(strings.TrimSpace(fmt.Sprint(value)))
		if status == string(detection.StatusSleeping) {
			response.Status = status
		}
	}

	if value, ok := fields["confidence"]; ok {
		confidence, err := detection.ParseConfidence(fmt.Sprint(value))
		if err == nil && confidence != detection.ConfidenceNone {
			response.Confidence = string(confidence)
		}
	}

	if value, ok := fields["details"]; ok && value != nil {
		response.Details = fmt.Sprint(value)
	}

	return response
}

// Failure builds the response reported when the model could not be queried.
func Failure(err error) *classifier.Response {
	return &classifier.Response{
		Status:     string(detection.StatusError),
		Confidence: string(detection.ConfidenceNone),
		Details:    "Error during analysis: " + err.Error(),
	}
}

// stripCodeFence drops markdown fence lines around a fenced reply.
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	kept := lines[:0]

	for _, line := range lines {
		if !strings.HasPrefix(line, "```") {
			kept = append(kept, line)
		}
	}

	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func guessFromText(text string) *classifier.Response {
	if strings.Contains(strings.ToLower(text), "sleep") {
		return &classifier.Response{
			Status:     string(detection.StatusSleeping),
			Confidence: string(detection.ConfidenceMedium),
			Details:    guessedDetails,
		}
	}

	return &classifier.Response{
		Status:     string(detection.StatusAwake),
		Confidence: string(detection.ConfidenceLow),
		Details:    unclearDetails,
	}
}
