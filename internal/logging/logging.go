// Package logging wires zerolog into a single base logger: console output
// on a TTY and JSON lines otherwise, with per-component sub-loggers carrying
// a "component" field.
package logging

import (
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

var base zerolog.Logger

func init() {
	level, err := zerolog.ParseLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if term.IsTerminal(int(os.Stdout.Fd())) {
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
	} else {
		base = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// For returns a sub-logger tagged with the given component name, derived
// off the process-wide base logger.
func For(component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}

// SetLevel overrides the global minimum log level at runtime.
func SetLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}
