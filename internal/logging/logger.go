package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level represents log severity levels
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	case FATAL:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel converts a string to a Level
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// Logger is a structured logger. Derived loggers share the underlying
// writer and never mutate their parent.
type Logger struct {
	zl        zerolog.Logger
	base      zerolog.Logger // zl without the component field
	component string
	traceID   string
}

// Config holds logger configuration
type Config struct {
	Level       string `json:"level" toml:"level"`
	Output      string `json:"output" toml:"output"` // "stdout", "stderr", or file path
	Component   string `json:"component" toml:"component"`
	IncludeFile bool   `json:"include_file" toml:"include_file"`
	JSONFormat  bool   `json:"json_format" toml:"json_format"`
}

var (
	defaultLogger *Logger
	defaultMu     sync.RWMutex
)

// New creates a new logger with the given configuration
func New(cfg *Config) *Logger {
	var output io.Writer = os.Stdout

	if cfg.Output == "stderr" {
		output = os.Stderr
	} else if cfg.Output != "" && cfg.Output != "stdout" {
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err == nil {
			output = file
		}
	}

	return NewWithWriter(output, cfg)
}

// NewWithWriter builds a logger writing to w. Used by tests to capture output.
func NewWithWriter(w io.Writer, cfg *Config) *Logger {
	if !cfg.JSONFormat {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(w).Level(ParseLevel(cfg.Level).zerolog()).With().Timestamp()
	if cfg.IncludeFile {
		ctx = ctx.CallerWithSkipFrameCount(4)
	}
	zl := ctx.Logger()
	l := &Logger{zl: zl, base: zl}
	if cfg.Component != "" {
		return l.WithComponent(cfg.Component)
	}
	return l
}

// Default returns the default logger instance
func Default() *Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	if l != nil {
		return l
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New(&Config{
			Level:      "INFO",
			Output:     "stdout",
			Component:  "app",
			JSONFormat: true,
		})
	}
	return defaultLogger
}

// SetDefault sets the default logger
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop(), base: zerolog.Nop()}
}

// WithComponent returns a new logger with the specified component. It
// replaces any component the parent carries.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		zl:        withComponent(l.base, component),
		base:      l.base,
		component: component,
		traceID:   l.traceID,
	}
}

func withComponent(base zerolog.Logger, component string) zerolog.Logger {
	if component == "" {
		return base
	}
	return base.With().Str("component", component).Logger()
}

// Component returns the component name attached to the logger.
func (l *Logger) Component() string {
	return l.component
}

// WithTraceID returns a new logger with the specified trace ID
func (l *Logger) WithTraceID(traceID string) *Logger {
	d := l.derive(func(c zerolog.Context) zerolog.Context { return c.Str("trace_id", traceID) })
	d.traceID = traceID
	return d
}

// TraceID returns the trace ID attached to the logger, if any.
func (l *Logger) TraceID() string {
	return l.traceID
}

// WithField returns a new logger with an additional field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.derive(func(c zerolog.Context) zerolog.Context { return c.Interface(key, value) })
}

// WithFields returns a new logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return l.derive(func(c zerolog.Context) zerolog.Context { return c.Fields(fields) })
}

// WithError returns a new logger with an error field
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.derive(func(c zerolog.Context) zerolog.Context { return c.Err(err) })
}

// WithDuration returns a new logger with duration field
func (l *Logger) WithDuration(d time.Duration) *Logger {
	return l.derive(func(c zerolog.Context) zerolog.Context { return c.Str("duration", d.String()) })
}

// derive adds fields below the component so a later WithComponent keeps them.
func (l *Logger) derive(add func(zerolog.Context) zerolog.Context) *Logger {
	base := add(l.base.With()).Logger()
	return &Logger{
		zl:        withComponent(base, l.component),
		base:      base,
		component: l.component,
		traceID:   l.traceID,
	}
}

// Zerolog exposes the underlying zerolog logger for libraries that want it.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

// log writes a log entry. Args are either key/value pairs or printf arguments.
func (l *Logger) log(level Level, msg string, args ...interface{}) {
	ev := l.zl.WithLevel(level.zerolog())
	if ev == nil {
		return
	}

	if len(args) >= 2 && len(args)%2 == 0 {
		if _, ok := args[0].(string); ok {
			for i := 0; i < len(args); i += 2 {
				key, ok := args[i].(string)
				if !ok {
					continue
				}
				if err, isErr := args[i+1].(error); isErr {
					ev = ev.AnErr(key, err)
					continue
				}
				ev = ev.Interface(key, args[i+1])
			}
			ev.Msg(msg)
			return
		}
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	ev.Msg(msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(DEBUG, msg, args...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(INFO, msg, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(WARN, msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(ERROR, msg, args...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.log(FATAL, msg, args...)
	os.Exit(1)
}

// Package-level functions for default logger

// Debug logs a debug message using the default logger
func Debug(msg string, args ...interface{}) {
	Default().Debug(msg, args...)
}

// Info logs an info message using the default logger
func Info(msg string, args ...interface{}) {
	Default().Info(msg, args...)
}

// Warn logs a warning message using the default logger
func Warn(msg string, args ...interface{}) {
	Default().Warn(msg, args...)
}

// Error logs an error message using the default logger
func Error(msg string, args ...interface{}) {
	Default().Error(msg, args...)
}

// Fatal logs a fatal message using the default logger
func Fatal(msg string, args ...interface{}) {
	Default().Fatal(msg, args...)
}

// WithComponent returns a new logger with the specified component
func WithComponent(component string) *Logger {
	return Default().WithComponent(component)
}

// WithField returns a new logger with an additional field
func WithField(key string, value interface{}) *Logger {
	return Default().WithField(key, value)
}
