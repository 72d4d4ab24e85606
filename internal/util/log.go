// Package util provides shared utility functions for logging, retries,
// timezone-aware time handling, date-range resolution, and URL
// canonicalization.
package util

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger creates a structured zerolog logger at the specified level.
// Supported levels: "debug", "info", "warn", "error". Defaults to "info"
// if the level string is not recognised. Format "console" renders
// human-readable output; anything else emits JSON.
//
// Output always goes to stderr: stdout is reserved for the stdio tool
// transport and must carry nothing but protocol frames.
func NewLogger(level, format string) zerolog.Logger {
	var zlevel zerolog.Level
	switch strings.ToLower(level) {
	case "debug":
		zlevel = zerolog.DebugLevel
	case "info":
		zlevel = zerolog.InfoLevel
	case "warn":
		zlevel = zerolog.WarnLevel
	case "error":
		zlevel = zerolog.ErrorLevel
	default:
		zlevel = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339

	var logger zerolog.Logger
	if strings.ToLower(format) == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	} else {
		logger = zerolog.New(os.Stderr)
	}

	return logger.Level(zlevel).With().Timestamp().Logger()
}
