// Package logger provides structured logging for pagestore
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with pagestore-specific functionality
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for development
	Output     io.Writer
	WithCaller bool
}

// NewLogger creates a new structured logger
func NewLogger(cfg Config) *Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		With().
		Timestamp().
		Str("service", "pagestore").
		Logger()

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// GetZerolog returns the underlying zerolog logger
func (l *Logger) GetZerolog() *zerolog.Logger {
	return &l.zlog
}

// Info logs an info message
func (l *Logger) Info(msg string) *zerolog.Event {
	return l.zlog.Info().Str("msg", msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) *zerolog.Event {
	return l.zlog.Debug().Str("msg", msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) *zerolog.Event {
	return l.zlog.Warn().Str("msg", msg)
}

// Error logs an error message
func (l *Logger) Error(msg string) *zerolog.Event {
	return l.zlog.Error().Str("msg", msg)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string) *zerolog.Event {
	return l.zlog.Fatal().Str("msg", msg)
}

// DbLogger returns a logger for database file operations
func (l *Logger) DbLogger(operation string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "dbfile").
			Str("operation", operation).
			Logger(),
	}
}

// ReplLogger returns a logger for REPL operations
func (l *Logger) ReplLogger() *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "repl").
			Logger(),
	}
}

// LogDbOperation logs a database operation with structured fields
func (l *Logger) LogDbOperation(operation string, duration time.Duration, err error) {
	event := l.zlog.Debug().
		Str("component", "dbfile").
		Str("operation", operation).
		Dur("duration_ms", duration)

	if err != nil {
		event = l.zlog.Error().
			Str("component", "dbfile").
			Str("operation", operation).
			Dur("duration_ms", duration).
			Err(err)
	}

	event.Msg("Database operation completed")
}

// LogStatement logs the outcome of one REPL statement
func (l *Logger) LogStatement(input string, duration time.Duration, err error) {
	event := l.zlog.Debug().
		Str("component", "repl").
		Str("statement", input).
		Dur("duration_ms", duration)

	if err != nil {
		event = l.zlog.Warn().
			Str("component", "repl").
			Str("statement", input).
			Dur("duration_ms", duration).
			Err(err)
	}

	event.Msg("Statement evaluated")
}

// LogReplStart logs REPL startup
func (l *Logger) LogReplStart(dbPath string) {
	l.zlog.Info().
		Str("event", "repl_start").
		Str("database", dbPath).
		Msg("pagestore REPL starting")
}

// LogReplShutdown logs REPL shutdown
func (l *Logger) LogReplShutdown() {
	l.zlog.Info().
		Str("event", "repl_shutdown").
		Msg("pagestore REPL shutting down")
}

// Global logger instance
var globalLogger *Logger

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(cfg Config) {
	globalLogger = NewLogger(cfg)
	log.Logger = *globalLogger.GetZerolog()
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		InitGlobalLogger(Config{
			Level:  "info",
			Pretty: true,
		})
	}
	return globalLogger
}
