package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Transport names accepted by TRANSCRIBE_TRANSPORT
const (
	TransportHTTP2     = "http2"
	TransportWebsocket = "websocket"
)

// Config holds all configuration for the transcription stream client
type Config struct {
	// Health and metrics server
	Port string `envconfig:"PORT" default:"9090"`

	// Streaming service endpoint, e.g. https://transcribestreaming.us-east-1.amazonaws.com
	// A ws:// or wss:// endpoint is used as-is by the websocket transport.
	Endpoint    string `envconfig:"TRANSCRIBE_ENDPOINT" required:"true"`
	Transport   string `envconfig:"TRANSCRIBE_TRANSPORT" default:"http2"` // http2 or websocket
	AuthToken   string `envconfig:"TRANSCRIBE_AUTH_TOKEN" default:""`     // Sent as a bearer token when set
	DialTimeout int    `envconfig:"TRANSCRIBE_DIAL_TIMEOUT" default:"10"` // Seconds

	// Stream parameters
	LanguageCode      string `envconfig:"TRANSCRIBE_LANGUAGE_CODE" default:"en-US"`
	MediaSampleRateHz int    `envconfig:"TRANSCRIBE_SAMPLE_RATE" default:"16000"`
	MediaEncoding     string `envconfig:"TRANSCRIBE_MEDIA_ENCODING" default:"pcm"`
	CallAnalytics     bool   `envconfig:"TRANSCRIBE_CALL_ANALYTICS" default:"false"`

	// Audio processing configuration
	StreamBufferSize   int     `envconfig:"STREAM_BUFFER_SIZE" default:"65536"`   // Outbound transfer buffer in bytes
	AudioChunkSize     int     `envconfig:"AUDIO_CHUNK_SIZE" default:"3200"`      // Bytes per AudioEvent
	VADEnergyThreshold float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"500.0"` // RMS energy threshold for VAD
	VADHangover        int     `envconfig:"VAD_HANGOVER" default:"2000"`          // Trailing silence in milliseconds

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum attempts to open a stream
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	RetryMaxBackoff            int `envconfig:"RETRY_MAX_BACKOFF" default:"5000"`           // Maximum backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	LogFile        string `envconfig:"LOG_FILE" default:""`            // Rotated log file; stderr when empty
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot express in tags
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("TRANSCRIBE_ENDPOINT is required")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Host == "" {
		return fmt.Errorf("TRANSCRIBE_ENDPOINT %q is not a valid URL", c.Endpoint)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("TRANSCRIBE_ENDPOINT scheme %q is not supported", u.Scheme)
	}

	switch c.Transport {
	case TransportHTTP2, TransportWebsocket:
	default:
		return fmt.Errorf("TRANSCRIBE_TRANSPORT must be %q or %q, got %q", TransportHTTP2, TransportWebsocket, c.Transport)
	}

	if c.MediaSampleRateHz <= 0 {
		return fmt.Errorf("TRANSCRIBE_SAMPLE_RATE must be positive")
	}
	if c.AudioChunkSize <= 0 || c.AudioChunkSize%2 != 0 {
		return fmt.Errorf("AUDIO_CHUNK_SIZE must be a positive even number of bytes")
	}
	if c.StreamBufferSize < c.AudioChunkSize {
		return fmt.Errorf("STREAM_BUFFER_SIZE must be at least AUDIO_CHUNK_SIZE")
	}
	return nil
}

// DialTimeoutDuration returns DialTimeout as a duration
func (c *Config) DialTimeoutDuration() time.Duration {
	return time.Duration(c.DialTimeout) * time.Second
}

// VADHangoverDuration returns VADHangover as a duration
func (c *Config) VADHangoverDuration() time.Duration {
	return time.Duration(c.VADHangover) * time.Millisecond
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
