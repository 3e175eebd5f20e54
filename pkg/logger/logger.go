// Package logger owns the process-wide structured logger: slog with a
// JSON or text handler, writing to stdout/stderr or a lumberjack-rotated
// file, plus the request-scoped field helpers the dispatcher uses.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the process-wide logger. Init or InitWithConfig must run before
// first use; main does this right after loading config.
var Log *slog.Logger

// Config mirrors the log section of the application config.
type Config struct {
	Level      string
	Format     string // json, text
	Output     string // stdout, stderr, file
	FilePath   string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// Init installs a JSON stdout logger at the given level; the shorthand
// for tests and early-startup error paths.
func Init(level string) {
	InitWithConfig(Config{Level: level, Format: "json", Output: "stdout"})
}

// InitWithConfig installs the fully configured logger.
func InitWithConfig(cfg Config) {
	level := parseLevel(cfg.Level)

	opts := &slog.HandlerOptions{
		Level: level,
		// Source locations only at debug; they are noise in production
		// JSON and cost an extra frame walk per record.
		AddSource: level == slog.LevelDebug,
	}

	writer := buildWriter(cfg)

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(writer, opts)
	} else {
		handler = slog.NewJSONHandler(writer, opts)
	}

	Log = slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildWriter picks the output sink. A file sink that cannot be prepared
// degrades to stdout rather than failing startup.
func buildWriter(cfg Config) io.Writer {
	switch cfg.Output {
	case "stderr":
		return os.Stderr
	case "file":
		path := cfg.FilePath
		if path == "" {
			path = "logs/app.log"
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return os.Stdout
		}
		return &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
	default:
		return os.Stdout
	}
}

// WithContext returns a logger carrying the given fields. ctx is
// accepted for call-site symmetry with the span helpers; nothing is read
// from it today.
func WithContext(ctx context.Context, args ...any) *slog.Logger {
	return Log.With(args...)
}

// WithRequestID tags a logger with one request id.
func WithRequestID(requestID string) *slog.Logger {
	return Log.With("request_id", requestID)
}

// WithService tags a logger with the emitting service name.
func WithService(service string) *slog.Logger {
	return Log.With("service", service)
}

// WithRequest tags a logger with one gateway request's identity fields.
func WithRequest(requestID, projectID, chainID string) *slog.Logger {
	return Log.With("request_id", requestID, "project_id", projectID, "chain_id", chainID)
}

// Package-level shorthands forwarding to Log.

func Debug(msg string, args ...any) {
	Log.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Log.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Log.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Log.Error(msg, args...)
}

// Fatal logs at error and exits; startup wiring only.
func Fatal(msg string, args ...any) {
	Log.Error(msg, args...)
	os.Exit(1)
}
