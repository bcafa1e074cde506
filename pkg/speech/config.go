package speech

import (
	"log/slog"
	"time"
)

// OpenAI voice and model defaults.
const (
	VoiceShimmer = "shimmer"
	ModelTTS1    = "tts-1"
)

// DefaultPlayer plays an MP3 stream from stdin.
var DefaultPlayer = []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", "-"}

// DefaultCommand speaks its last argument through the local synthesizer.
var DefaultCommand = []string{"espeak-ng"}

// Config holds speaker configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	APIKey  string
	BaseURL string
	Voice   string
	Model   string

	// Player receives synthesized audio on stdin.
	Player []string

	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	Logger *slog.Logger
}

// Option is a functional option for configuring speakers.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithBaseURL overrides the default API URL.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithVoice sets the voice.
func WithVoice(voice string) Option {
	return func(c *Config) {
		c.Voice = voice
	}
}

// WithModel sets the synthesis model.
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithPlayer sets the playback command.
func WithPlayer(argv ...string) Option {
	return func(c *Config) {
		c.Player = argv
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithRetry configures retry behavior for failed requests.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Voice:      VoiceShimmer,
		Model:      ModelTTS1,
		Player:     DefaultPlayer,
		Timeout:    30 * time.Second,
		MaxRetries: 2,
		RetryDelay: 200 * time.Millisecond,
		Logger:     slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	if len(c.Player) == 0 {
		return ErrNoCommand
	}
	return nil
}
