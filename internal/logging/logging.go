package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Level represents logging severity.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

var (
	mu               sync.RWMutex
	currentLevel     = LevelWarn
	currentVerbosity = 0
	base             zerolog.Logger
)

func init() {
	SetOutput(os.Stderr)
	zerolog.SetGlobalLevel(toZerolog(currentLevel))
}

// SetOutput redirects every logger created afterwards to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base = zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}).With().Timestamp().Logger()
}

// levelByCount maps the number of -v flags to a level.
var levelByCount = [...]Level{LevelWarn, LevelInfo, LevelDebug, LevelTrace, LevelTrace}

// SetVerbosity configures logger output from count of -v flags (0-4).
func SetVerbosity(count int) {
	count = max(0, min(count, len(levelByCount)-1))
	mu.Lock()
	currentVerbosity = count
	currentLevel = levelByCount[count]
	level := currentLevel
	mu.Unlock()
	zerolog.SetGlobalLevel(toZerolog(level))
}

// Verbosity returns the stored -v count.
func Verbosity() int {
	mu.RLock()
	defer mu.RUnlock()
	return currentVerbosity
}

// LevelName returns current level label.
func LevelName() string {
	mu.RLock()
	defer mu.RUnlock()
	return LevelToString(currentLevel)
}

// LevelToString converts a Level to human readable text.
func LevelToString(l Level) string {
	if l < LevelError || l > LevelTrace {
		return "unknown"
	}
	return toZerolog(l).String()
}

// ParseLevel returns Level + verbosity count from string.
func ParseLevel(s string) (Level, int, error) {
	name := strings.ToLower(s)
	if name == "warning" {
		name = "warn"
	}
	for count := len(levelByCount) - 1; count >= 0; count-- {
		if LevelToString(levelByCount[count]) == name {
			return levelByCount[count], count, nil
		}
	}
	if name == LevelToString(LevelError) {
		return LevelError, 0, nil
	}
	return LevelWarn, Verbosity(), fmt.Errorf("unknown level %s", s)
}

func toZerolog(l Level) zerolog.Level {
	switch l {
	case LevelError:
		return zerolog.ErrorLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// Base returns the configured root logger.
func Base() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Component returns a child logger annotated with the given component name.
func Component(name string) zerolog.Logger {
	return Base().With().Str("component", name).Logger()
}

// Errorf always prints.
func Errorf(format string, args ...any) { logf(zerolog.ErrorLevel, format, args...) }
func Warnf(format string, args ...any) { logf(zerolog.WarnLevel, format, args...) }
func Infof(format string, args ...any) { logf(zerolog.InfoLevel, format, args...) }
func Debugf(format string, args ...any) { logf(zerolog.DebugLevel, format, args...) }
func Tracef(format string, args ...any) { logf(zerolog.TraceLevel, format, args...) }

func logf(level zerolog.Level, format string, args ...any) {
	l := Base()
	l.WithLevel(level).Msgf(format, args...)
}
