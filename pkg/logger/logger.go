// Package logger provides the engine's prefixed log API and the
// channel log files. Server messages carry a two-character severity
// tag so operators can grep one class of problem out of a shared
// file; channel logs rotate by size but keep the tail of the old
// file so readers keep their recent history.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity tags. Two characters, bracketed, grep-friendly.
const (
	tagInfo  = "[..]"
	tagWarn  = "[WW]"
	tagError = "[EE]"
	tagSec   = "[SS]"
	tagDep   = "[DP]"
	tagTrace = "[::]"
	tagFile  = "[-]"
)

// timestamp renders the log time with a two-digit year.
func timestamp() string {
	return time.Now().Format("06-01-02 15:04:05")
}

// Logger writes tagged lines to one output. Multi-line messages are
// split so every line carries the timestamp and tag.
type Logger struct {
	mu  sync.Mutex
	out io.Writer
}

// New creates a Logger writing to out.
func New(out io.Writer) *Logger {
	return &Logger{out: out}
}

// NewServerLog creates a Logger backed by a size-rotated file.
// maxSizeMB and maxBackups follow lumberjack's semantics.
func NewServerLog(path string, maxSizeMB, maxBackups int) *Logger {
	return New(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	})
}

var std = New(os.Stderr)

// Default returns the process-wide Logger, writing to stderr until a
// server log is installed.
func Default() *Logger { return std }

// SetDefault replaces the process-wide Logger.
func SetDefault(l *Logger) { std = l }

func (l *Logger) write(tag, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	ts := timestamp()

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range strings.Split(strings.TrimRight(msg, "\n"), "\n") {
		fmt.Fprintf(l.out, "%s %s %s\n", ts, tag, line)
	}
}

// Info logs an informative message.
func (l *Logger) Info(format string, args ...any) { l.write(tagInfo, format, args...) }

// Warn logs a warning.
func (l *Logger) Warn(format string, args ...any) { l.write(tagWarn, format, args...) }

// Error logs an error.
func (l *Logger) Error(format string, args ...any) { l.write(tagError, format, args...) }

// Sec logs a security-related message (logins, failed passwords,
// permission escalations).
func (l *Logger) Sec(format string, args ...any) { l.write(tagSec, format, args...) }

// Dep logs a deprecation notice.
func (l *Logger) Dep(format string, args ...any) { l.write(tagDep, format, args...) }

// Trace logs debug tracing.
func (l *Logger) Trace(format string, args ...any) { l.write(tagTrace, format, args...) }

// Close closes the underlying writer when it is closable.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.out.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
