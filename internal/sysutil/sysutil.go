// Package sysutil configures process-wide logging for the widgetchat
// binary.
package sysutil

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetLogLevel sets the global zerolog level and returns it. Supported
// values (case-insensitive): debug, info, warn|warning, error, fatal,
// panic. Anything else selects info.
func SetLogLevel(lvl string) zerolog.Level {
	var level zerolog.Level
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn", "warning":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	case "fatal":
		level = zerolog.FatalLevel
	case "panic":
		level = zerolog.PanicLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	return level
}

// SetupLogger installs the global logger writing to w: JSON lines with
// RFC3339Nano UTC timestamps, or a human console format when pretty is set.
func SetupLogger(lvl string, pretty bool, w io.Writer) zerolog.Logger {
	SetLogLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }

	out := w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &log.Logger
	return log.Logger
}
