package app

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogging configures the global zerolog logger. verbose forces debug
// level regardless of cfg.Level.
func SetupLogging(cfg LogConfig, verbose bool) {
	SetupLoggingTo(os.Stderr, cfg, verbose)
}

// SetupLoggingTo is SetupLogging writing to w.
func SetupLoggingTo(w io.Writer, cfg LogConfig, verbose bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	}

	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level))); err == nil && cfg.Level != "" {
		level = l
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
}
