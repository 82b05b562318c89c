package observability

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	globalLogger zerolog.Logger
	initialized  bool
)

// LogOptions configures the global logger
type LogOptions struct {
	Level  string // debug, info, warn, error, fatal, panic
	Pretty bool   // Console output instead of JSON
	File   string // Rotated log file; stderr when empty
}

// InitLogger initializes the global structured logger
func InitLogger(opts LogOptions) {
	if initialized {
		return
	}

	zerolog.SetGlobalLevel(parseLevel(opts.Level))

	// stdout carries transcripts, so logs default to stderr
	var out io.Writer = os.Stderr
	if opts.File != "" {
		out = fileWriter(opts.File)
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    opts.File != "",
		}
	}
	globalLogger = zerolog.New(out).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = globalLogger

	initialized = true
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// fileWriter returns a size-rotated writer for path, falling back to
// stderr when the directory cannot be created
func fileWriter(path string) io.Writer {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
}

// GetLogger returns the global logger
func GetLogger() zerolog.Logger {
	if !initialized {
		// Initialize with defaults if not already initialized
		InitLogger(LogOptions{Level: "info"})
	}
	return globalLogger
}

// WithCorrelationID creates a logger with a correlation ID
func WithCorrelationID(correlationID string) zerolog.Logger {
	if correlationID == "" {
		correlationID = NewCorrelationID()
	}
	return GetLogger().With().Str("correlation_id", correlationID).Logger()
}

// WithSession creates a logger for one transcription stream
func WithSession(sessionID string) zerolog.Logger {
	return GetLogger().With().Str("session_id", sessionID).Logger()
}

// NewCorrelationID generates a new correlation ID
func NewCorrelationID() string {
	return uuid.New().String()
}
