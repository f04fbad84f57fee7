package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Log levels
const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	levelMap = map[int]zerolog.Level{
		LevelDebug: zerolog.DebugLevel,
		LevelInfo:  zerolog.InfoLevel,
		LevelWarn:  zerolog.WarnLevel,
		LevelError: zerolog.ErrorLevel,
	}

	mu   sync.RWMutex
	base zerolog.Logger
)

// Logger is a component-scoped leveled logger
type Logger struct {
	component string
}

func init() {
	SetOutput(os.Stdout)
	if IsDevelopment() {
		SetMinLevel(LevelDebug)
	} else {
		SetMinLevel(LevelInfo)
	}
}

// New creates a new logger for a specific component
func New(component string) *Logger {
	return &Logger{component: component}
}

// SetOutput redirects every logger to w. Development builds get a
// human-readable console writer, everything else gets JSON lines.
func SetOutput(w io.Writer) {
	if IsDevelopment() {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime, NoColor: true}
	}

	mu.Lock()
	base = zerolog.New(w).With().Timestamp().Logger()
	mu.Unlock()
}

// SetMinLevel allows changing the minimum log level at runtime
func SetMinLevel(level int) {
	lvl, ok := levelMap[level]
	if !ok {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func (l *Logger) logf(level int, format string, args ...interface{}) {
	mu.RLock()
	zl := base
	mu.RUnlock()

	zl.WithLevel(levelMap[level]).
		Str("component", l.component).
		Msg(fmt.Sprintf(format, args...))
}

// Debug logs debug information
func (l *Logger) Debug(format string, args ...interface{}) {
	l.logf(LevelDebug, format, args...)
}

// Info logs information messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.logf(LevelInfo, format, args...)
}

// Warn logs warning messages
func (l *Logger) Warn(format string, args ...interface{}) {
	l.logf(LevelWarn, format, args...)
}

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.logf(LevelError, format, args...)
}

// GetAppEnv returns the current application environment
func GetAppEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "development"
	}
	return env
}

// IsDevelopment returns true if the current environment is development
func IsDevelopment() bool {
	return GetAppEnv() == "development"
}
