package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Logger writes status output to stderr so secret values on stdout
// (for example --json results) stay pipeable.
type Logger struct {
	out     io.Writer
	debug   bool
	noColor bool
}

// New creates a logger. Colors are ANSI escapes around a status marker;
// pass noColor=true when stderr is not a terminal.
func New(debug, noColor bool) *Logger {
	return &Logger{out: os.Stderr, debug: debug, noColor: noColor}
}

// NewWithWriter creates a logger writing to w. Used by tests.
func NewWithWriter(w io.Writer, debug, noColor bool) *Logger {
	return &Logger{out: w, debug: debug, noColor: noColor}
}

func (l *Logger) emit(color, marker, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.noColor {
		fmt.Fprintf(l.out, "%s %s\n", marker, msg)
		return
	}
	fmt.Fprintf(l.out, "\033[%sm%s\033[0m %s\n", color, marker, msg)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.emit("32", "✓", format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.emit("33", "⚠", format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.emit("31", "✗", format, args...)
}

// Debug logs a debug message if debug mode is enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.emit("36", "[DEBUG]", format, args...)
}

// Secret wraps a value that must never appear in log output. Both %s and
// %#v render as [REDACTED].
type Secret string

func (s Secret) String() string   { return "[REDACTED]" }
func (s Secret) GoString() string { return "[REDACTED]" }

// Redact replaces occurrences of the given secret values in s.
// Values of three characters or fewer are left alone to avoid
// mangling ordinary text.
func Redact(s string, secrets []string) string {
	for _, secret := range secrets {
		if len(secret) > 3 {
			s = strings.ReplaceAll(s, secret, "[REDACTED]")
		}
	}
	return s
}
