// internal/config/log.go
package config

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds the process logger. JSON to stdout by default; the console
// writer is only for local development.
func NewLogger(cfg Log) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Console {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
