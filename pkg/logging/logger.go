// Package logging configures the process-wide zerolog logger for MoneyWise.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvLevel  = "LOG_LEVEL"
	EnvFormat = "LOG_FORMAT" // "json" (default) or "pretty"
)

// ServiceName is attached to every log line.
const ServiceName = "moneywise"

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

// ConfigFromEnv reads LOG_LEVEL and LOG_FORMAT through getenv, keeping
// defaults for unset variables.
func ConfigFromEnv(getenv func(string) string) Config {
	cfg := DefaultConfig()
	if v := strings.TrimSpace(getenv(EnvLevel)); v != "" {
		cfg.Level = LogLevel(strings.ToLower(v))
	}
	if strings.EqualFold(strings.TrimSpace(getenv(EnvFormat)), "pretty") {
		cfg.Pretty = true
	}
	return cfg
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", ServiceName).
		Logger()

	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level. Unknown levels fall back to info.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger derives a logger for one component from the global logger.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache hits, misses and writes (key, ttl, bytes)
//   - Cache invalidations (keys)
//   - Worker progress during cache warmup
//
// Info: Normal operation events
//   - Server startup/shutdown
//   - Cache pool connected
//   - Budgets created or updated
//   - Rate limited requests
//
// Warn: Warning conditions that don't prevent operation
//   - Cache retry attempts and degraded reads (served from the database)
//   - Undecodable cache entries purged
//   - Circuit breaker state changes
//   - Invalid configuration values replaced by defaults
//   - Rate limiter running without Redis
//
// Error: Error conditions requiring attention
//   - Cache invalidation rejected by Redis
//   - Database failures surfaced to clients
//   - Startup failures
//
// Context Fields:
//   - component: Subsystem emitting the line (cache, budget, api, warmup)
//   - key / keys: Cache key(s) involved
//   - kind: Cache error kind (io, timeout, redirect, auth, protocol, other)
//   - attempt: Retry attempt number
//   - period: Budget period as YYYY-MM[/CUR]
//   - budget_id: Budget UUID
//   - status / latency: HTTP response status and duration
