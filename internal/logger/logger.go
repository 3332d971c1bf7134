// Package logger writes the per-run operation log: one human-readable line
// per operation invocation and completion. The log file is truncated when it
// is opened so every run starts with a fresh log.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// Logger is safe for concurrent use by all nodes of a run. A nil *Logger is
// valid and discards everything.
type Logger struct {
	file   *os.File
	logger *log.Logger
	mu     sync.Mutex
	muted  uint32
}

// Open creates (or truncates) the log file at path.
func Open(path string) (*Logger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create log directory %s: %w", dir, err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return &Logger{
		file:   file,
		logger: log.New(file, "", log.LstdFlags|log.Lmicroseconds),
	}, nil
}

// New returns a logger writing to w. Close does not close w.
func New(w io.Writer) *Logger {
	return &Logger{
		logger: log.New(w, "", log.LstdFlags|log.Lmicroseconds),
	}
}

// Log writes one line. A nil or muted logger discards it.
func (l *Logger) Log(format string, args ...interface{}) {
	if l == nil || atomic.LoadUint32(&l.muted) == 1 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Printf(format, args...)
}

// SetMuted turns discarding of new lines on or off.
func (l *Logger) SetMuted(enabled bool) {
	if enabled {
		atomic.StoreUint32(&l.muted, 1)
		return
	}
	atomic.StoreUint32(&l.muted, 0)
}

// Path returns the file name, or "" for loggers created with New.
func (l *Logger) Path() string {
	if l == nil || l.file == nil {
		return ""
	}
	return l.file.Name()
}

// Close closes the log file. It does nothing for loggers created with New.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
