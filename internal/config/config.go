package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the sleepwatch binaries.
type Config struct {
	// ClassifierURL is the base URL of the detector service; /detect is appended.
	ClassifierURL string `yaml:"classifier_url" validate:"required,url"`
	// ControlAddress is the gRPC address of the watcher's control service.
	ControlAddress string `yaml:"control_addr" validate:"required"`
	// HTTPAddress is the listen address of the watcher's status API. Empty disables it.
	HTTPAddress string `yaml:"http_addr" validate:"omitempty,hostname_port"`
	// HistoryFile is the path to the JSON file storing recent detections.
	HistoryFile string `yaml:"history_file"`
	// Timeout is the duration for control RPC calls.
	Timeout time.Duration `yaml:"timeout"`
	// ClassifierTimeout bounds one classification request.
	ClassifierTimeout time.Duration `yaml:"classifier_timeout"`
	// PollInterval is the delay between two captures.
	PollInterval time.Duration `yaml:"poll_interval"`
	// LogLevel is the zap level name; empty keeps the default.
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
	// LogFormat is console or json; empty keeps console.
	LogFormat string `yaml:"log_format" validate:"omitempty,oneof=console json"`
	// Audio configures alarm output.
	Audio AudioConfig `yaml:"audio"`
	// Camera configures the snapshot source.
	Camera CameraConfig `yaml:"camera"`
	// Detector configures the classification service.
	Detector DetectorConfig `yaml:"detector"`
}

// AudioConfig selects and tunes the audio backend.
type AudioConfig struct {
	// Backend is one of speaker, beep or none.
	Backend string `yaml:"backend" validate:"omitempty,oneof=speaker beep none"`
	// SampleRate is the output sample rate of the speaker backend.
	SampleRate int `yaml:"sample_rate" validate:"omitempty,gte=8000,lte=192000"`
	// BufferSize is the device buffer length of the speaker backend.
	BufferSize time.Duration `yaml:"buffer_size"`
}

// CameraConfig configures image capture.
type CameraConfig struct {
	// SnapshotURL returns a still image on GET, for example an IP camera endpoint.
	SnapshotURL string `yaml:"snapshot_url" validate:"omitempty,url"`
	// MaxWidth is the width frames are downscaled to before upload. Zero keeps the original size.
	MaxWidth int `yaml:"max_width" validate:"gte=0"`
}

// DetectorConfig configures the vision model behind /detect.
type DetectorConfig struct {
	// ListenAddress is the HTTP listen address of the detector.
	ListenAddress string `yaml:"listen_addr" validate:"omitempty,hostname_port"`
	// APIKey authenticates against the model provider. Falls back to GROQ_API_KEY.
	APIKey string `yaml:"api_key,omitempty"`
	// BaseURL is the OpenAI-compatible endpoint of the provider.
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	// Model is the vision model identifier.
	Model string `yaml:"model"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "sleepwatch-settings.yaml"

	// DefaultHistoryFilename is the default filename for detection history JSON.
	DefaultHistoryFilename = "sleepwatch-history.json"

	// DefaultTimeout is the default duration for control RPC calls.
	DefaultTimeout = 5 * time.Second

	// DefaultClassifierTimeout is the default duration of one classification.
	DefaultClassifierTimeout = 30 * time.Second

	// DefaultPollInterval is the default delay between captures.
	DefaultPollInterval = 5 * time.Second

	// DefaultAudioBackend is the audio backend used when none is configured.
	DefaultAudioBackend = "speaker"

	// DefaultSampleRate is the default speaker sample rate.
	DefaultSampleRate = 44100

	// DefaultBufferSize is the default speaker buffer length.
	DefaultBufferSize = 50 * time.Millisecond

	// DefaultDetectorAddress is the default detector listen address.
	DefaultDetectorAddress = ":5000"

	// DefaultDetectorBaseURL is Groq's OpenAI-compatible endpoint.
	DefaultDetectorBaseURL = "https://api.groq.com/openai/v1"

	// DefaultDetectorModel is the default vision model.
	DefaultDetectorModel = "meta-llama/llama-4-scout-17b-16e-instruct"

	// APIKeyEnv is the environment variable holding the provider key.
	APIKeyEnv = "GROQ_API_KEY"

	// DefaultFilePermissions is the default file permission for config and history files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")

	// validate checks struct tags.
	validate = validator.New(validator.WithRequiredStructEnabled())
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes Settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions, the file may carry an API key.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and formatting
// and fills in defaults for optional ones.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if err := validate.Struct(settings); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	if _, err := net.ResolveTCPAddr("tcp", settings.ControlAddress); err != nil {
		return fmt.Errorf("invalid control address: %w", err)
	}

	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	if settings.ClassifierTimeout <= 0 {
		settings.ClassifierTimeout = DefaultClassifierTimeout
	}

	if settings.PollInterval <= 0 {
		settings.PollInterval = DefaultPollInterval
	}

	if settings.HistoryFile == "" {
		settings.HistoryFile = DefaultHistoryFilename
	}

	applyAudioDefaults(&settings.Audio)
	applyDetectorDefaults(&settings.Detector)

	return nil
}

// ResolveAPIKey returns the provider key from the settings or the environment.
func (d *DetectorConfig) ResolveAPIKey() string {
	if d.APIKey != "" {
		return d.APIKey
	}

	return os.Getenv(APIKeyEnv)
}

func applyAudioDefaults(audio *AudioConfig) {
	if audio.Backend == "" {
		audio.Backend = DefaultAudioBackend
	}

	if audio.SampleRate == 0 {
		audio.SampleRate = DefaultSampleRate
	}

	if audio.BufferSize <= 0 {
		audio.BufferSize = DefaultBufferSize
	}
}

func applyDetectorDefaults(detector *DetectorConfig) {
	if detector.ListenAddress == "" {
		detector.ListenAddress = DefaultDetectorAddress
	}

	if detector.BaseURL == "" {
		detector.BaseURL = DefaultDetectorBaseURL
	}

	if detector.Model == "" {
		detector.Model = DefaultDetectorModel
	}
}
