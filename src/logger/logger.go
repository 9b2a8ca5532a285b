package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// -----------------------------------------------------------------------------

// Logger provides leveled, printf-style logging on top of zerolog.
type Logger struct {
	name   string
	base   zerolog.Logger
	logger zerolog.Logger
	exit   func(int)
}

// -----------------------------------------------------------------------------

// NewLogger creates a Logger writing JSON lines to stdout.
func NewLogger(level string, name string) *Logger {
	return NewLoggerWithWriter(os.Stdout, level, name)
}

// -----------------------------------------------------------------------------

// NewLoggerWithWriter creates a Logger writing to w.
func NewLoggerWithWriter(w io.Writer, level string, name string) *Logger {
	base := zerolog.New(w).With().Timestamp().Logger().Level(ParseLevel(level))
	return &Logger{
		name:   name,
		base:   base,
		logger: base.With().Str("component", name).Logger(),
		exit:   os.Exit,
	}
}

// -----------------------------------------------------------------------------

// NewNopLogger discards everything.
func NewNopLogger() *Logger {
	return &Logger{name: "nop", base: zerolog.Nop(), logger: zerolog.Nop(), exit: func(int) {}}
}

// -----------------------------------------------------------------------------

// ParseLevel maps config level names (DEBUG, INFO, WARNING, ERROR) to zerolog
// levels. Unknown values fall back to info.
func ParseLevel(level string) zerolog.Level {
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "warning" {
		lvl = "warn"
	}
	parsed, err := zerolog.ParseLevel(lvl)
	if err != nil || lvl == "" {
		return zerolog.InfoLevel
	}
	return parsed
}

// -----------------------------------------------------------------------------

// Named returns a child logger sharing the same sink with a different component name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		name:   name,
		base:   l.base,
		logger: l.base.With().Str("component", name).Logger(),
		exit:   l.exit,
	}
}

// -----------------------------------------------------------------------------

// Level returns the active level
func (l *Logger) Level() zerolog.Level {
	return l.logger.GetLevel()
}

// -----------------------------------------------------------------------------

func (l *Logger) Debug(format string, args ...interface{}) {
	l.logger.Debug().Msg(fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

func (l *Logger) Warning(format string, args ...interface{}) {
	l.logger.Warn().Msg(fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.logger.Info().Msg(fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.logger.Error().Msg(fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Critical logs critical errors and exits the application
func (l *Logger) Critical(format string, args ...interface{}) {
	l.logger.WithLevel(zerolog.FatalLevel).Msg(fmt.Sprintf(format, args...))
	l.exit(1)
}
