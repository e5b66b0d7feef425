package logger

import (
	"context"
	"log/slog"

	"github.com/fatih/color"
)

// colorHandler wraps a slog.TextHandler and colours the level field, the
// same terminal-styling idea as the teacher's pterm-backed terminal handler
// but grounded on github.com/fatih/color
// (_examples/kryptco-kr/color.go's per-level Sprint wrappers) since that is
// the colour library this module's domain stack carries.
type colorHandler struct {
	inner slog.Handler
}

func (h *colorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *colorHandler) Handle(ctx context.Context, record slog.Record) error {
	record.Message = levelColor(record.Level).Sprint(record.Message)
	return h.inner.Handle(ctx, record)
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &colorHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	return &colorHandler{inner: h.inner.WithGroup(name)}
}

func levelColor(level slog.Level) *color.Color {
	switch {
	case level >= slog.LevelError:
		return color.New(color.FgHiRed)
	case level >= slog.LevelWarn:
		return color.New(color.FgHiYellow)
	case level >= slog.LevelInfo:
		return color.New(color.FgHiCyan)
	default:
		return color.New(color.FgHiBlack)
	}
}
