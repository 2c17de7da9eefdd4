package log

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a zerolog logger tagged with the given component name.
// Loggers are constructed once by the entry point and handed to each
// collaborator; packages never log through ambient globals.
//
// Output is structured JSON on stderr. Setting POWERCAL_ENV=dev switches
// to the human-readable console writer.
func New(component string) zerolog.Logger {
	var l zerolog.Logger
	if strings.ToLower(os.Getenv("POWERCAL_ENV")) == "dev" {
		writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		l = zerolog.New(writer)
	} else {
		l = zerolog.New(os.Stderr)
	}
	return l.With().Timestamp().Str("component", component).Logger()
}

// ParseLevel maps a config-file level string onto a zerolog level.
// Unknown values fall back to info rather than failing startup.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
