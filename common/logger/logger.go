package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents log severity levels
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu    sync.RWMutex
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base  = newLogger("json", level)
	sugar = base.Sugar()
)

func newLogger(format string, lvl zap.AtomicLevel) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = lvl
	cfg.DisableStacktrace = true
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// Init rebuilds the process logger. format is "json" (default) or "console".
func Init(lvl string, format string) {
	SetLevel(ParseLevel(lvl))
	Replace(newLogger(format, level))
}

// Replace swaps the underlying zap logger, e.g. with zaptest or an observer in tests.
func Replace(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	base = l
	sugar = l.Sugar()
	mu.Unlock()
}

// L returns the underlying structured logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func s() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Sync flushes buffered entries.
func Sync() error { return L().Sync() }

// ParseLevel maps debug/info/warn/error onto LogLevel, defaulting to info.
func ParseLevel(v string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(v)) {
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

// SetLevel sets the minimum log level
func SetLevel(l LogLevel) {
	switch l {
	case LevelDebug:
		level.SetLevel(zapcore.DebugLevel)
	case LevelWarn:
		level.SetLevel(zapcore.WarnLevel)
	case LevelError:
		level.SetLevel(zapcore.ErrorLevel)
	default:
		level.SetLevel(zapcore.InfoLevel)
	}
}

// Debugf logs a debug message
func Debugf(format string, args ...interface{}) { s().Debugf(format, args...) }

// Infof logs an info message
func Infof(format string, args ...interface{}) { s().Infof(format, args...) }

// Warnf logs a warning message
func Warnf(format string, args ...interface{}) { s().Warnf(format, args...) }

// Errorf logs an error message
func Errorf(format string, args ...interface{}) { s().Errorf(format, args...) }

// ContextLogger carries fixed key/value pairs, e.g. session and sub-query.
type ContextLogger struct {
	fields []interface{}
}

// WithContext creates a new logger with context
func WithContext(context map[string]interface{}) *ContextLogger {
	fields := make([]interface{}, 0, len(context)*2)
	for k, v := range context {
		fields = append(fields, k, v)
	}
	return &ContextLogger{fields: fields}
}

// With returns a child logger with one more key/value pair.
func (c *ContextLogger) With(key string, value interface{}) *ContextLogger {
	fields := append(append([]interface{}(nil), c.fields...), key, value)
	return &ContextLogger{fields: fields}
}

func (c *ContextLogger) Debugf(format string, args ...interface{}) {
	s().With(c.fields...).Debugf(format, args...)
}

func (c *ContextLogger) Infof(format string, args ...interface{}) {
	s().With(c.fields...).Infof(format, args...)
}

func (c *ContextLogger) Warnf(format string, args ...interface{}) {
	s().With(c.fields...).Warnf(format, args...)
}

func (c *ContextLogger) Errorf(format string, args ...interface{}) {
	s().With(c.fields...).Errorf(format, args...)
}
