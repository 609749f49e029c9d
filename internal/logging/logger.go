// Package logging provides structured logging for padsync using slog.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Levels, re-exported so callers need not import slog.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var current atomic.Pointer[slog.Logger]

// Options configures a logger.
type Options struct {
	Level slog.Level
	// Output defaults to os.Stderr. Ignored when File has a path.
	Output    io.Writer
	JSON      bool
	AddSource bool
	File      *FileOptions
}

// FileOptions sends log output to a file that lumberjack rotates by size.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Writer opens the rotating file writer.
func (f FileOptions) Writer() io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   f.Path,
		MaxSize:    f.MaxSizeMB,
		MaxBackups: f.MaxBackups,
		MaxAge:     f.MaxAgeDays,
	}
}

// DefaultOptions logs text at info level to stderr.
func DefaultOptions() Options {
	return Options{Level: LevelInfo, Output: os.Stderr}
}

// New builds a text or JSON logger from opts.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if opts.File != nil && opts.File.Path != "" {
		out = opts.File.Writer()
	}
	if out == nil {
		out = os.Stderr
	}

	ho := &slog.HandlerOptions{Level: opts.Level, AddSource: opts.AddSource}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(out, ho))
	}
	return slog.New(slog.NewTextHandler(out, ho))
}

// Default returns the process logger, installing one from DefaultOptions on first use.
func Default() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	current.CompareAndSwap(nil, New(DefaultOptions()))
	return current.Load()
}

// SetDefault replaces the process logger and slog's default with logger.
func SetDefault(logger *slog.Logger) {
	current.Store(logger)
	slog.SetDefault(logger)
}

// With returns the process logger with args attached.
func With(args ...any) *slog.Logger {
	return Default().With(args...)
}

// WithContext returns the logger stored in ctx, or the process logger.
func WithContext(ctx context.Context) *slog.Logger {
	if l := FromContext(ctx); l != nil {
		return l
	}
	return Default()
}

func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any) { Default().Info(msg, args...) }
func Warn(msg string, args ...any) { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }

type loggerKey struct{}

// NewContext attaches logger to ctx.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger attached to ctx, or nil.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return nil
}

// Attribute keys shared by every log record padsync writes.
const (
	KeyProfile   = "profile"
	KeyStore     = "store" // profile, padConfigurations or pageMetadata
	KeyKey       = "key"
	KeyPath      = "path"
	KeyOperation = "operation"
	KeyTrigger   = "trigger"
	KeyState     = "state"
	KeyCount     = "count"
	KeyError     = "error"
	KeyDuration  = "duration"
)

func Profile(id string) slog.Attr { return slog.String(KeyProfile, id) }
func Store(name string) slog.Attr { return slog.String(KeyStore, name) }
func Key(k string) slog.Attr { return slog.String(KeyKey, k) }
func Path(p string) slog.Attr { return slog.String(KeyPath, p) }
func Operation(op string) slog.Attr { return slog.String(KeyOperation, op) }
func Trigger(t string) slog.Attr { return slog.String(KeyTrigger, t) }
func State(s string) slog.Attr { return slog.String(KeyState, s) }
func Count(n int) slog.Attr { return slog.Int(KeyCount, n) }

// Err attaches err, or nothing when err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any(KeyError, err)
}

// Timer logs the duration of an operation at debug level when the returned
// function is called.
//
//	defer logging.Timer("download")()
func Timer(op string) func() {
	start := time.Now()
	return func() {
		Debug("operation finished",
			Operation(op),
			slog.Duration(KeyDuration, time.Since(start)),
		)
	}
}
