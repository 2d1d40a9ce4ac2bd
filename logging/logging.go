// Package logging provides the process logger. It wraps slog with a console
// handler and an optional debug log file.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

var (
	logger  *slog.Logger
	logFile *os.File
	level   = new(slog.LevelVar)
	mu      sync.Mutex
)

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// Anything else is info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(w io.Writer, lvl slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: lvl}
	// Use JSON in production, text in development
	if os.Getenv("GO_ENV") == "production" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Init sets the console logger level. Output goes to stderr so command
// results on stdout stay clean.
func Init(levelName string) {
	mu.Lock()
	defer mu.Unlock()
	initLocked(ParseLevel(levelName))
}

func initLocked(lvl slog.Level) {
	level.Set(lvl)
	logger = slog.New(newHandler(os.Stderr, level))
	slog.SetDefault(logger)
}

// SetupLogger tees every record, debug included, into logFilePath in
// addition to the console.
func SetupLogger(logFilePath string, levelName string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		return nil
	}

	f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	logFile = f

	level.Set(ParseLevel(levelName))
	logger = slog.New(teeHandler{
		newHandler(os.Stderr, level),
		slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
	slog.SetDefault(logger)

	logger.Debug("debug log started", "at", time.Now().Format(time.RFC3339))
	return nil
}

// CloseLogger closes the log file and returns to console-only logging.
func CloseLogger() {
	mu.Lock()
	defer mu.Unlock()

	if logFile == nil {
		return
	}
	logger.Debug("debug log closed", "at", time.Now().Format(time.RFC3339))
	logFile.Close()
	logFile = nil
	initLocked(level.Level())
}

// L returns the global logger instance.
func L() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		initLocked(slog.LevelInfo)
	}
	return logger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

// LogInfo logs a formatted message at info level.
func LogInfo(format string, args ...interface{}) {
	L().Info(fmt.Sprintf(format, args...))
}

// DebugLog logs a formatted message at debug level.
func DebugLog(format string, args ...interface{}) {
	L().Debug(fmt.Sprintf(format, args...))
}

// LogError logs a formatted message at error level.
func LogError(format string, args ...interface{}) {
	L().Error(fmt.Sprintf(format, args...))
}

// LogWarning logs a formatted message at warn level.
func LogWarning(format string, args ...interface{}) {
	L().Warn(fmt.Sprintf(format, args...))
}

// LogCaptureIndexed records the outcome of indexing one capture file.
func LogCaptureIndexed(path string, success bool, errMsg string) {
	if success {
		L().Debug("indexed", "path", path)
		return
	}
	L().Debug("index failed", "path", path, "error", errMsg)
}

// teeHandler sends each record to every handler that accepts its level.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
