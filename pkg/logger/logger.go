package logger

import (
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	charmlog "github.com/charmbracelet/log"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var (
	mu      sync.RWMutex
	current = INFO
	base    = newBase(os.Stderr, INFO)
)

func newBase(w io.Writer, level LogLevel) *charmlog.Logger {
	return charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           level.charm(),
	})
}

func (l LogLevel) charm() charmlog.Level {
	switch l {
	case DEBUG:
		return charmlog.DebugLevel
	case WARN:
		return charmlog.WarnLevel
	case ERROR:
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}

// SetOutput redirects all log output. Used by tests and the shell command.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base = newBase(w, current)
}

func SetLevel(level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	current = level
	base.SetLevel(level.charm())
}

func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// ParseLevel maps a config string to a level, defaulting to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func logf(level LogLevel, component, message string, fields map[string]any) {
	mu.RLock()
	l := base
	mu.RUnlock()

	keyvals := make([]any, 0, len(fields)*2+2)
	if component != "" {
		keyvals = append(keyvals, "component", component)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		keyvals = append(keyvals, k, fields[k])
	}

	switch level {
	case DEBUG:
		l.Debug(message, keyvals...)
	case WARN:
		l.Warn(message, keyvals...)
	case ERROR:
		l.Error(message, keyvals...)
	default:
		l.Info(message, keyvals...)
	}
}

func Debug(message string) { logf(DEBUG, "", message, nil) }
func DebugC(component, message string) { logf(DEBUG, component, message, nil) }
func DebugCF(component, message string, fields map[string]any) { logf(DEBUG, component, message, fields) }

func Info(message string) { logf(INFO, "", message, nil) }
func InfoC(component, message string) { logf(INFO, component, message, nil) }
func InfoCF(component, message string, fields map[string]any) { logf(INFO, component, message, fields) }

func Warn(message string) { logf(WARN, "", message, nil) }
func WarnC(component, message string) { logf(WARN, component, message, nil) }
func WarnCF(component, message string, fields map[string]any) { logf(WARN, component, message, fields) }

func Error(message string) { logf(ERROR, "", message, nil) }
func ErrorC(component, message string) { logf(ERROR, component, message, nil) }
func ErrorCF(component, message string, fields map[string]any) { logf(ERROR, component, message, fields) }
