// Package logger provides the structured logging setup shared by every binary and
// package in this module.
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// Config controls how the root logger is constructed.
type Config struct {
	Level  string
	Pretty bool
}

func init() {
	zerolog.TimeFieldFormat = "2006-01-02T15:04:05Z07:00"
}

// New builds a zerolog.Logger writing to stdout, sets the process-wide global level,
// and enables caller information so log lines point back at the call site.
func New(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	var writer = os.Stdout
	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: writer, TimeFormat: "15:04:05"})
	} else {
		logger = zerolog.New(writer)
	}

	return logger.With().Timestamp().Caller().Logger()
}

// SetGlobalLogger installs logger as zerolog.DefaultContextLogger, the logger that
// zerolog.Ctx returns for a context carrying none. The zerolog/log package's global
// logger is left unchanged.
func SetGlobalLogger(logger zerolog.Logger) {
	zerolog.DefaultContextLogger = &logger
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
