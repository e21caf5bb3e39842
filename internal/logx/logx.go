// Package logx implements the relay's operator-facing log sink: an
// append-only text file with `[timestamp] [level] message` lines, capped by
// keeping only the most recent lines once a byte limit is passed. Logging
// never returns an error to callers; a write failure falls back once to a
// secondary sink and is then swallowed.
package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Logger writes capped, line-oriented log entries to a single file.
type Logger struct {
	mu        sync.Mutex
	path      string
	enabled   bool
	maxBytes  int64
	keepLines int
	fallback  io.Writer
	now       func() time.Time
}

// New creates a logger for the given file path. maxBytes and keepLines bound
// the file size; zero values select 10MB / 1000 lines.
func New(path string, enabled bool, maxBytes int64, keepLines int) *Logger {
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	if keepLines <= 0 {
		keepLines = 1000
	}
	return &Logger{
		path:      path,
		enabled:   enabled,
		maxBytes:  maxBytes,
		keepLines: keepLines,
		fallback:  os.Stderr,
		now:       time.Now,
	}
}

// SetEnabled toggles logging after a settings reload.
func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	l.enabled = enabled
	l.mu.Unlock()
}

// SetFallback replaces the secondary sink, mainly for tests.
func (l *Logger) SetFallback(w io.Writer) {
	l.mu.Lock()
	l.fallback = w
	l.mu.Unlock()
}

// SetNow overrides the clock, for tests.
func (l *Logger) SetNow(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

func (l *Logger) Debugf(format string, args ...any) { l.write("debug", format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.write("info", format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.write("warning", format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.write("error", format, args...) }

func (l *Logger) write(level, format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled {
		return
	}
	line := fmt.Sprintf("[%s] [%s] %s\n", l.now().Format("2006-01-02 15:04:05"), level, fmt.Sprintf(format, args...))
	if err := l.append(line); err != nil {
		if l.fallback != nil {
			_, _ = io.WriteString(l.fallback, line)
		}
		return
	}
	l.trimIfNeeded()
}

// append uses a single O_APPEND write so concurrent writers cannot interleave
// partial lines.
func (l *Logger) append(line string) error {
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line)
	return err
}

// trimIfNeeded keeps only the most recent keepLines lines once the file grows
// past maxBytes. Failures are swallowed; the cap is best effort.
func (l *Logger) trimIfNeeded() {
	info, err := os.Stat(l.path)
	if err != nil || info.Size() <= l.maxBytes {
		return
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		return
	}
	lines := splitLines(string(data))
	if len(lines) > l.keepLines {
		lines = lines[len(lines)-l.keepLines:]
	}
	_ = os.WriteFile(l.path, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
}

// Tail returns up to n of the most recent log lines.
func (l *Logger) Tail(n int) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	lines := splitLines(string(data))
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Clear truncates the log file.
func (l *Logger) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	err := os.Remove(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
