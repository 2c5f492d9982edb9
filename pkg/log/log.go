// Package log defines the minimal logger consumed by client and session
// configs, and a zerolog-backed implementation of it.
package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const EnvLogLevel = "YARMI_LOG_LEVEL"

type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
}

// ZerologLogger adapts a zerolog.Logger to Logger.
type ZerologLogger struct {
	logger zerolog.Logger
}

func NewZerologLogger(logger zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{
		logger: logger,
	}
}

// NewConsoleLogger writes human readable output to out, tagged with app. The
// level is read from YARMI_LOG_LEVEL and defaults to info.
func NewConsoleLogger(out io.Writer, app string) *ZerologLogger {
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
	level, ok := ParseLevel(os.Getenv(EnvLogLevel))
	if !ok {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(output).Level(level).With().Timestamp().Str("app", app).Logger()
	return NewZerologLogger(logger)
}

// With returns a logger that adds key=value to every entry.
func (l *ZerologLogger) With(key string, value string) *ZerologLogger {
	return &ZerologLogger{
		logger: l.logger.With().Str(key, value).Logger(),
	}
}

// Level returns a copy of the logger filtered at level.
func (l *ZerologLogger) Level(level zerolog.Level) *ZerologLogger {
	return &ZerologLogger{
		logger: l.logger.Level(level),
	}
}

func (l *ZerologLogger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

func (l *ZerologLogger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

func (l *ZerologLogger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

func (l *ZerologLogger) Error(msg string) {
	l.logger.Error().Msg(msg)
}

// ParseLevel maps a level name to a zerolog level. The bool is false for an
// empty or unknown name.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}
