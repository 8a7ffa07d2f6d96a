package main

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetLogLevel sets the global minimum level. Unknown values fall back to info.
func SetLogLevel(level string) {
	zerolog.SetGlobalLevel(parseLogLevel(level))
}

// SetLogFormat switches between JSON lines and the human-readable console writer.
func SetLogFormat(format string) {
	var out io.Writer = os.Stdout
	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02T15:04:05-07:00"}
	}
	logger = zerolog.New(out).With().Timestamp().Logger()
}

func Debug(format string, args ...interface{}) {
	logger.Debug().Msgf(format, args...)
}

func Info(format string, args ...interface{}) {
	logger.Info().Msgf(format, args...)
}

func Warn(format string, args ...interface{}) {
	logger.Warn().Msgf(format, args...)
}

func Error(format string, args ...interface{}) {
	logger.Error().Msgf(format, args...)
}

func Fatal(format string, args ...interface{}) {
	logger.Fatal().Msgf(format, args...)
}
