// Package enginelog writes the engine's leveled diagnostic log to an
// append-only file under the project's .baton directory. It is a
// plain-text companion to the sqlite operation log: the operation log
// is the durable audit trail, this file is for humans tailing a run.
package enginelog

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Level gates which messages reach the log file.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger is a leveled line logger. The zero value is not usable; build
// one with Open, New, or Discard.
type Logger struct {
	logger *log.Logger
	closer io.Closer
	level  Level
}

// Open creates the engine logger at <workDir>/.baton/logs/engine.log,
// creating the directory as needed.
func Open(workDir, level string) (*Logger, error) {
	dir := filepath.Join(workDir, ".baton", "logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(dir, "engine.log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	l := New(f, ParseLevel(level))
	l.closer = f
	return l, nil
}

// New builds a logger on an arbitrary writer.
func New(w io.Writer, level Level) *Logger {
	return &Logger{
		logger: log.New(w, "", 0),
		level:  level,
	}
}

// Discard builds a logger that drops everything.
func Discard() *Logger {
	return New(io.Discard, LevelError+1)
}

// Close releases the underlying file, if any.
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

func (l *Logger) Debugf(format string, args ...any) { l.write(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.write(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.write(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.write(LevelError, format, args...) }

func (l *Logger) write(level Level, format string, args ...any) {
	if level < l.level {
		return
	}
	levelStr := "INFO"
	switch level {
	case LevelDebug:
		levelStr = "DEBUG"
	case LevelWarn:
		levelStr = "WARN"
	case LevelError:
		levelStr = "ERROR"
	}
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("%s %s engine: %s", time.Now().UTC().Format(time.RFC3339), levelStr, msg)
}
