// Package logger is the leveled, printf-style logging facade used by the bridge.
// Messages are written through zerolog to the console, an optional log file and
// any extra sinks (such as the websocket log stream).
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the log sinks.
type Options struct {
	Level    string
	FilePath string      // empty disables file logging
	Console  io.Writer   // defaults to os.Stderr
	Sinks    []io.Writer // extra plain-text sinks
}

var (
	mu      sync.RWMutex
	log     = newLogger(os.Stderr, nil)
	level   = zerolog.InfoLevel
	logFile *os.File
)

func newLogger(console io.Writer, plain []io.Writer) zerolog.Logger {
	writers := []io.Writer{zerolog.ConsoleWriter{Out: console, TimeFormat: time.DateTime}}
	for _, w := range plain {
		writers = append(writers, zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime, NoColor: true})
	}
	return zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
}

// Setup replaces the active sinks. A log file that already exists is rotated
// to "<name>.old" before a new session starts.
func Setup(opts Options) error {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	sinks := append([]io.Writer(nil), opts.Sinks...)
	var f *os.File
	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0755); err != nil {
			return fmt.Errorf("could not create log directory: %w", err)
		}
		rotate(opts.FilePath)
		var err error
		f, err = os.OpenFile(opts.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("could not open log file: %w", err)
		}
		sinks = append(sinks, f)
	}

	mu.Lock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	log = newLogger(console, sinks)
	mu.Unlock()

	if opts.Level != "" {
		SetLevelFromString(opts.Level)
	}
	if f != nil {
		Info("--- Log session started at %s ---", time.Now().Format(time.RFC3339))
	}
	return nil
}

func rotate(path string) {
	old := path + ".old"
	if _, err := os.Stat(path); err != nil {
		return
	}
	os.Remove(old)
	if err := os.Rename(path, old); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] Failed to rotate log file: %v\n", err)
	}
}

// ParseLevel maps DEBUG, INFO, WARN and ERROR (case-insensitive) to a level.
func ParseLevel(s string) (zerolog.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return zerolog.DebugLevel, true
	case "INFO":
		return zerolog.InfoLevel, true
	case "WARN", "WARNING":
		return zerolog.WarnLevel, true
	case "ERROR":
		return zerolog.ErrorLevel, true
	}
	return zerolog.InfoLevel, false
}

// SetLevelFromString sets the minimum level. Unknown names fall back to INFO.
func SetLevelFromString(s string) {
	lvl, ok := ParseLevel(s)
	mu.Lock()
	level = lvl
	mu.Unlock()
	if !ok {
		Warn("Unknown log level '%s', using INFO.", s)
	}
}

// Level returns the current minimum level.
func Level() zerolog.Level {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

func emit(lvl zerolog.Level, format string, v ...interface{}) {
	mu.RLock()
	l, minLevel := log, level
	mu.RUnlock()
	if lvl < minLevel {
		return
	}
	l.WithLevel(lvl).Msgf(format, v...)
}

func Debug(format string, v ...interface{}) { emit(zerolog.DebugLevel, format, v...) }
func Info(format string, v ...interface{})  { emit(zerolog.InfoLevel, format, v...) }
func Warn(format string, v ...interface{})  { emit(zerolog.WarnLevel, format, v...) }
func Error(format string, v ...interface{}) { emit(zerolog.ErrorLevel, format, v...) }

// Fatal logs the message, closes the log file and exits with status 1.
func Fatal(format string, v ...interface{}) {
	emit(zerolog.FatalLevel, format, v...)
	Close()
	os.Exit(1)
}

// Close flushes and closes the log file, if any.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}
