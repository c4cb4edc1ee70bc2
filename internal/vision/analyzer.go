package vision

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/oshokin/sleepwatch/internal/classifier"
	"github.com/oshokin/sleepwatch/internal/logger"
)

const (
	// Temperature keeps verdicts close to deterministic.
	Temperature = 0.1

	// MaxCompletionTokens bounds the reply length.
	MaxCompletionTokens = 256

	// dataURIScheme prefixes inline images.
	dataURIScheme = "data:"

	// jpegDataURIPrefix is assumed for bare base64 payloads.
	jpegDataURIPrefix = "data:image/jpeg;base64,"
)

var (
	// errAPIKeyRequired is returned when no provider key is configured.
	errAPIKeyRequired = errors.New("api key must not be empty")
	// errModelRequired is returned when no model is configured.
	errModelRequired = errors.New("model must not be empty")
	// errNoChoices is returned when the provider answers without choices.
	errNoChoices = errors.New("empty choices in response")
)

// Analyzer classifies images with a vision model.
type Analyzer struct {
	// client talks to the chat completions endpoint.
	client oai.Client
	// model is the vision model identifier.
	model string
}

// config holds optional configuration for the analyzer.
type config struct {
	baseURL    string
	timeout    time.Duration
	maxRetries int
	httpClient *http.Client
}

// Option is a functional option for Analyzer.
type Option func(*config)

// WithBaseURL overrides the provider endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries sets how many times a failed request is retried.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// WithHTTPClient replaces the HTTP client. WithTimeout is ignored when set.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *config) {
		c.httpClient = httpClient
	}
}

// New constructs an analyzer for the given model.
func New(apiKey, model string, opts ...Option) (*Analyzer, error) {
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	if model == "" {
		return nil, errModelRequired
	}

	cfg := &config{maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	switch {
	case cfg.httpClient != nil:
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	case cfg.timeout > 0:
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Analyzer{
		client: oai.NewClient(reqOpts...),
		model:  model,
	}, nil
}

// Detect classifies a base64 image, data-URI prefixed or not. Provider
// failures are reported as an error verdict rather than an error value.
func (a *Analyzer) Detect(ctx context.Context, image string) *classifier.Response {
	reply, err := a.complete(ctx, ImageURL(image))
	if err != nil {
		logger.ErrorKV(ctx, "Vision model call failed", "model", a.model, "error", err)

		return Failure(err)
	}

	logger.DebugKV(ctx, "Vision model replied", "model", a.model, "reply", reply)

	return ParseReply(reply)
}

// ImageURL returns image as a data URI, assuming JPEG for bare base64.
func ImageURL(image string) string {
	if strings.HasPrefix(image, dataURIScheme) {
		return image
	}

	return jpegDataURIPrefix + image
}

func (a *Analyzer) complete(ctx context.Context, imageURL string) (string, error) {
	resp, err := a.client.Chat.Completions.New(ctx, buildParams(a.model, imageURL))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errNoChoices
	}

	return resp.Choices[0].Message.Content, nil
}

// buildParams assembles the single-message vision request.
func buildParams(model, imageURL string) oai.ChatCompletionNewParams {
	content := []oai.ChatCompletionContentPartUnionParam{
		oai.TextContentPart(systemPrompt + userInstruction),
		oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{
			URL: imageURL,
		}),
	}

	return oai.ChatCompletionNewParams{
		Model:               shared.ChatModel(model),
		Messages:            []oai.ChatCompletionMessageParamUnion{oai.UserMessage(content)},
		Temperature:         param.NewOpt(Temperature),
		MaxCompletionTokens: param.NewOpt(int64(MaxCompletionTokens)),
	}
}
