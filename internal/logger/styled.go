package logger

import (
	"fmt"
	"log/slog"

	"github.com/fatih/color"
)

// StyledLogger is the facade every tcplb component logs through, matching
// the teacher's StyledLogger interface
// (_examples/thushan-olla/internal/logger/styled.go) trimmed to the
// destination/endpoint-oriented helpers this domain needs.
type StyledLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	InfoWithDest(msg string, dstName string, args ...any)
	WarnWithDest(msg string, dstName string, args ...any)
	With(args ...any) StyledLogger
	Underlying() *slog.Logger
}

type styledLogger struct {
	logger *slog.Logger
}

// NewStyledLogger wraps a root slog.Logger.
func NewStyledLogger(l *slog.Logger) StyledLogger {
	return &styledLogger{logger: l}
}

func (s *styledLogger) Debug(msg string, args ...any) { s.logger.Debug(msg, args...) }
func (s *styledLogger) Info(msg string, args ...any)  { s.logger.Info(msg, args...) }
func (s *styledLogger) Warn(msg string, args ...any)  { s.logger.Warn(msg, args...) }
func (s *styledLogger) Error(msg string, args ...any) { s.logger.Error(msg, args...) }

func (s *styledLogger) InfoWithDest(msg string, dstName string, args ...any) {
	styled := fmt.Sprintf("%s %s", msg, color.New(color.FgHiCyan).Sprint(dstName))
	s.logger.Info(styled, args...)
}

func (s *styledLogger) WarnWithDest(msg string, dstName string, args ...any) {
	styled := fmt.Sprintf("%s %s", msg, color.New(color.FgHiYellow).Sprint(dstName))
	s.logger.Warn(styled, args...)
}

func (s *styledLogger) With(args ...any) StyledLogger {
	return &styledLogger{logger: s.logger.With(args...)}
}

func (s *styledLogger) Underlying() *slog.Logger {
	return s.logger
}
