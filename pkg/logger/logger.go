package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the logging interface used by the library.
type Logger interface {
	Info(msg string, obj any)
	Warn(msg string, obj any)
	Debug(msg string, obj any)
	Error(msg string, obj any)
}

// Fields is the usual obj argument: a flat set of key/value pairs.
type Fields = map[string]any

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// ParseLevel maps debug/info/warn/error to a Level. Unknown names map to info.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// NopLogger discards all log messages.
type NopLogger struct{}

func (NopLogger) Info(string, any)  {}
func (NopLogger) Warn(string, any)  {}
func (NopLogger) Debug(string, any) {}
func (NopLogger) Error(string, any) {}

type writerLogger struct {
	mu    *sync.Mutex
	w     io.Writer
	min   Level
	now   func() time.Time
	scope Fields
}

// NewWriterLogger builds a logger that writes lines at or above minLevel to w.
func NewWriterLogger(w io.Writer, minLevel Level) Logger {
	return &writerLogger{mu: &sync.Mutex{}, w: w, min: minLevel, now: time.Now}
}

// NewFileWriter returns a size-rotated log file sink.
func NewFileWriter(path string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10,
		MaxAge:     14,
		MaxBackups: 3,
		Compress:   true,
	}
}

// With returns a logger that adds fields to every line. It only applies to
// loggers built by this package; others are returned unchanged.
func With(l Logger, fields Fields) Logger {
	wl, ok := l.(*writerLogger)
	if !ok || len(fields) == 0 {
		return l
	}
	merged := make(Fields, len(wl.scope)+len(fields))
	for k, v := range wl.scope {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	clone := *wl
	clone.scope = merged
	return &clone
}

func (l *writerLogger) write(level Level, msg string, obj any) {
	if l.w == nil || level < l.min {
		return
	}
	obj = l.withScope(obj)

	ts := l.now().Format(time.RFC3339)
	var line string
	if obj == nil {
		line = fmt.Sprintf("%s %-5s %s\n", ts, level, msg)
	} else if b, err := json.Marshal(obj); err != nil {
		line = fmt.Sprintf("%s %-5s %s obj=%q\n", ts, level, msg, fmt.Sprintf("%+v", obj))
	} else {
		line = fmt.Sprintf("%s %-5s %s obj=%s\n", ts, level, msg, b)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.w, line)
}

func (l *writerLogger) withScope(obj any) any {
	if len(l.scope) == 0 {
		return obj
	}
	merged := make(Fields, len(l.scope)+1)
	for k, v := range l.scope {
		merged[k] = v
	}
	switch o := obj.(type) {
	case nil:
	case map[string]any:
		for k, v := range o {
			merged[k] = v
		}
	default:
		merged["obj"] = o
	}
	return merged
}

func (l *writerLogger) Info(msg string, obj any)  { l.write(LevelInfo, msg, obj) }
func (l *writerLogger) Warn(msg string, obj any)  { l.write(LevelWarn, msg, obj) }
func (l *writerLogger) Debug(msg string, obj any) { l.write(LevelDebug, msg, obj) }
func (l *writerLogger) Error(msg string, obj any) { l.write(LevelError, msg, obj) }

// Debug writes a debug log when logger is non-nil.
func Debug(logger Logger, msg string, obj any) {
	if logger == nil {
		return
	}
	logger.Debug(msg, obj)
}

// Info writes an info log when logger is non-nil.
func Info(logger Logger, msg string, obj any) {
	if logger == nil {
		return
	}
	logger.Info(msg, obj)
}

// Warn writes a warning log when logger is non-nil.
func Warn(logger Logger, msg string, obj any) {
	if logger == nil {
		return
	}
	logger.Warn(msg, obj)
}

// Error writes an error log when logger is non-nil.
func Error(logger Logger, msg string, obj any) {
	if logger == nil {
		return
	}
	logger.Error(msg, obj)
}
