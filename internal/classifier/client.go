package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oshokin/sleepwatch/internal/domain/detection"
	"github.com/oshokin/sleepwatch/internal/version"
)

// DetectPath is the classification endpoint path.
const DetectPath = "/detect"

// maxResponseSize bounds the bytes read from a classifier response.
const maxResponseSize = 1 << 20

// Request is the body of POST /detect.
type Request struct {
	// Image is base64 image data, optionally data-URI prefixed.
	Image string `json:"image" validate:"required"`
}

// Response is the body returned by POST /detect.
type Response struct {
	// Status is sleeping, awake or error.
	Status string `json:"status"`
	// Confidence is high, medium, low or none.
	Confidence string `json:"confidence"`
	// Details is free text.
	Details string `json:"details"`
}

var (
	// ErrUnexpectedStatus is returned for non-200 classifier responses.
	ErrUnexpectedStatus = errors.New("unexpected classifier status")
	// ErrMalformedResponse is returned when the response body cannot be interpreted.
	ErrMalformedResponse = errors.New("malformed classifier response")
)

// Classifier turns an encoded image into a detection result.
type Classifier interface {
	Classify(ctx context.Context, image string) (*detection.Result, error)
}

// Client calls a remote classifier over HTTP.
type Client struct {
	// endpoint is the full /detect URL.
	endpoint string
	// httpClient performs requests and carries the call timeout.
	httpClient *http.Client
	// now stamps results.
	now func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its Timeout is kept as is.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient creates a client for the classifier at baseURL with a per-call timeout.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(baseURL, "/") + DetectPath,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Classify submits the image and returns the classifier's verdict.
// Transport failures, non-200 answers and undecodable bodies are errors.
func (c *Client) Classify(ctx context.Context, image string) (*detection.Result, error) {
	body, err := json.Marshal(Request{Image: image})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call classifier: %w", err)
	}
	defer resp.Body.Close()

	contents, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var payload Response
	decodeErr := json.Unmarshal(contents, &payload)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && payload.Details != "" {
			return nil, fmt.Errorf("%w: %s: %s", ErrUnexpectedStatus, resp.Status, payload.Details)
		}

		return nil, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, decodeErr)
	}

	return c.toResult(&payload)
}

func (c *Client) toResult(payload *Response) (*detection.Result, error) {
	status, err := detection.ParseStatus(payload.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	confidence, err := detection.ParseConfidence(payload.Confidence)
	if err != nil {
		confidence = detection.ConfidenceNone
		if status != detection.StatusError {
			confidence = detection.ConfidenceLow
		}
	}

	return &detection.Result{
		Timestamp:  c.now(),
		Status:     status,
		Confidence: confidence,
		Details:    payload.Details,
	}, nil
}
