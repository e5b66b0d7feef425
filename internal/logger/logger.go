// Package logger builds the process-wide slog.Logger and the StyledLogger
// facade used throughout tcplb. Grounded on the teacher's internal/logger
// package (_examples/thushan-olla/internal/logger/logger.go): pretty
// terminal output vs JSON file output selected by config, lumberjack file
// rotation, and a ReplaceAttr hook that normalises the timestamp key and
// strips stray ANSI codes from string attributes headed to the log file.
package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config mirrors spec.md §6's `log` config block.
type Config struct {
	Level      string
	LogDir     string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	FileOutput bool
	PrettyLogs bool
}

const (
	DefaultLogOutputName = "tcplb.log"

	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// New builds the root slog.Logger per cfg, returning a cleanup func that
// closes any rotating file handler.
func New(cfg Config) (*slog.Logger, func(), error) {
	level := parseLevel(cfg.Level)

	var cleanupFuncs []func()
	var handlers []slog.Handler

	if cfg.PrettyLogs {
		handlers = append(handlers, newTerminalHandler(level))
	} else {
		handlers = append(handlers, newJSONHandler(os.Stdout, level))
	}

	if cfg.FileOutput {
		fileHandler, cleanup, err := newFileHandler(cfg, level)
		if err != nil {
			return nil, nil, err
		}
		cleanupFuncs = append(cleanupFuncs, cleanup)
		handlers = append(handlers, fileHandler)
	}

	var root *slog.Logger
	if len(handlers) == 1 {
		root = slog.New(handlers[0])
	} else {
		root = slog.New(&multiHandler{handlers: handlers})
	}

	cleanup := func() {
		for _, fn := range cleanupFuncs {
			fn()
		}
	}
	return root, cleanup, nil
}

func newTerminalHandler(level slog.Level) slog.Handler {
	return &colorHandler{inner: slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttr,
	})}
}

func newJSONHandler(w *os.File, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttr,
	})
}

func newFileHandler(cfg Config, level slog.Level) (slog.Handler, func(), error) {
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, nil, err
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, DefaultLogOutputName),
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}

	handler := slog.NewJSONHandler(rotator, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttr,
	})
	return handler, func() { _ = rotator.Close() }, nil
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		return slog.Attr{Key: "timestamp", Value: slog.StringValue(a.Value.Time().Format("2006-01-02 15:04:05"))}
	}
	if a.Value.Kind() == slog.KindString && strings.ContainsRune(a.Value.String(), '\x1b') {
		return slog.Attr{Key: a.Key, Value: slog.StringValue(stripAnsi(a.Value.String()))}
	}
	return a
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// multiHandler fans every record out to each inner handler, matching the
// teacher's simpleMultiHandler (pretty terminal output plus a rotating JSON
// file, simultaneously).
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, record.Level) {
			if err := handler.Handle(ctx, record.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}
