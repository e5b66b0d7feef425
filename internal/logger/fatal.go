package logger

import (
	"fmt"
	"log/slog"
	"os"
)

// Fatal logs msg at error level to the default slog logger and exits 1,
// matching the teacher's package-level Fatal helpers
// (_examples/thushan-olla/internal/logger/fatal.go) used for unrecoverable
// startup errors.
func Fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

func Fatalf(format string, args ...any) {
	slog.Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}

func FatalWithLogger(l StyledLogger, msg string, args ...any) {
	l.Error(msg, args...)
	os.Exit(1)
}
