// Package logging provides structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string // RFC3339, Unix, etc.
}

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
	}
}

// Init initializes the global zerolog logger.
func Init(cfg Config) {
	InitWithWriter(cfg, os.Stdout)
}

// InitWithWriter initializes the global logger writing to out.
func InitWithWriter(cfg Config, out io.Writer) {
	zerolog.TimeFieldFormat = cfg.TimeFormat

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := out
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Str("service", "meeting-minutes-service").
		Caller().
		Logger()
}

// Logger returns the global logger.
func Logger() zerolog.Logger {
	return log.Logger
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}

// WithSession returns a logger with meeting session context.
func WithSession(component, sessionKey string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Str("sessionKey", sessionKey).
		Logger()
}

// WithSegment returns a logger with segment context.
func WithSegment(sessionKey, source, resultId string) zerolog.Logger {
	return log.With().
		Str("sessionKey", sessionKey).
		Str("source", source).
		Str("resultId", resultId).
		Logger()
}

// WithSource returns a logger with audio source context.
func WithSource(sessionKey, source, provider string) zerolog.Logger {
	return log.With().
		Str("component", "audio").
		Str("sessionKey", sessionKey).
		Str("source", source).
		Str("sttProvider", provider).
		Logger()
}
