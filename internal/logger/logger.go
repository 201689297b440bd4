package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/phuslu/log"
)

var (
	root     *log.Logger
	level    = log.InfoLevel
	logFile  *os.File
	mu       sync.Mutex
	logPath  string
	initDone bool
)

// DefaultLogPath returns ~/.autobuilder/logs/autobuilder.log.
func DefaultLogPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".autobuilder", "logs", "autobuilder.log"), nil
}

// SetDebug enables or disables debug level logging.
// Loggers handed out before the call keep the level they were created with.
func SetDebug(enabled bool) {
	mu.Lock()
	defer mu.Unlock()

	if enabled {
		level = log.DebugLevel
	} else {
		level = log.InfoLevel
	}
	if root != nil {
		root.Level = level
	}
}

// Init opens the log file at path and makes it the destination of every logger.
// The terminal belongs to stage output, so nothing is ever logged to stdout.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if initDone {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log directory %s: %w", dir, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", path, err)
	}
	logFile = f
	logPath = path
	root = &log.Logger{
		Level:      level,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Writer:     &log.IOWriter{Writer: f},
	}
	initDone = true

	root.Info().Str("path", path).Msg("logger initialized")
	return nil
}

// InitWriter routes all logging to w. Intended for tests.
func InitWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	root = &log.Logger{
		Level:  level,
		Writer: &log.IOWriter{Writer: w},
	}
	initDone = true
}

// Path returns the file Init was called with, or "" when logging to a writer.
func Path() string {
	mu.Lock()
	defer mu.Unlock()
	return logPath
}

// discard is used until Init runs so that packages can log unconditionally.
func discard() *log.Logger {
	return &log.Logger{
		Level:  level,
		Writer: &log.IOWriter{Writer: io.Discard},
	}
}

// Get returns the root logger.
func Get() *log.Logger {
	mu.Lock()
	defer mu.Unlock()

	if root == nil {
		return discard()
	}
	return root
}

// WithComponent returns a logger that tags every entry with component.
//
// Example:
//
//	log := logger.WithComponent("runner")
//	log.Info().Str("stage", "build").Int("exit_code", 0).Msg("stage finished")
func WithComponent(component string) *log.Logger {
	mu.Lock()
	base := root
	if base == nil {
		base = discard()
	}
	mu.Unlock()

	l := *base
	l.Context = log.NewContext(nil).Str("component", component).Value()
	return &l
}

// Close flushes and closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	root = nil
}

// Reset clears all logger state so Init can run again. Used by tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	initDone = false
	logPath = ""
	root = nil
	level = log.InfoLevel
}
