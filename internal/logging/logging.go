// Package logging configures the process-wide zerolog logger.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config controls the global logger.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // "json" or "console"
	TimeFormat string
}

// Init installs the global zerolog logger per cfg. Called once at startup.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = timeFormat

	if cfg.Format == "console" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: timeFormat}).
			With().Timestamp().Logger()
		return
	}

	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}
