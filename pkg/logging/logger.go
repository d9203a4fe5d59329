// Package logging configures zerolog for ram-browser and hands out
// component loggers.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Component names used as the "component" field.
const (
	ComponentClient     = "ram-client"
	ComponentPagination = "pagination"
	ComponentEpisodes   = "episodes"
	ComponentBrowser    = "browser"
	ComponentProxy      = "ram-proxy"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel maps level names to zerolog levels. "warning" is accepted;
// anything unknown or disabled falls back to info.
func parseLevel(level LogLevel) zerolog.Level {
	if level == "warning" {
		return zerolog.WarnLevel
	}
	parsed, err := zerolog.ParseLevel(string(level))
	if err != nil || parsed == zerolog.NoLevel || parsed == zerolog.Disabled {
		return zerolog.InfoLevel
	}
	return parsed
}

// NewLogger creates a logger tagged with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: cache hits, coalesced requests, background load outcomes
// Info: page applied, list restarted, retry issued, server startup/shutdown
// Warn: failed page or episode loads, stale results discarded, cache or
// throttle store errors
// Error: startup failures
//
// Context Fields:
//   - component: emitting package
//   - page: page number of a list request
//   - direction: initial or append
//   - generation: filter generation
//   - character: character id of an episode load
//   - key: composite episode id or cache key
//   - request_id: proxy request id
