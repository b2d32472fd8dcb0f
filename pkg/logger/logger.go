// Package logger provides the runner's file-backed log.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

var (
	globalLogger *log.Logger
	logFile      *os.File
	mu           sync.Mutex
)

// Init initializes the global logger with the specified log file path.
func Init(logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	// Close previous log file if exists
	if logFile != nil {
		logFile.Close()
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	logFile = f
	globalLogger = log.New(f, "", log.Ltime|log.Lmicroseconds)

	return nil
}

// InitWriter points the global logger at an arbitrary writer (tests, stderr).
func InitWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	globalLogger = log.New(w, "", log.Ltime|log.Lmicroseconds)
}

// Close closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	globalLogger = nil
}

func printf(level, prefix, format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if globalLogger == nil {
		return
	}
	if prefix != "" {
		globalLogger.Printf("["+level+"] ["+prefix+"] "+format, v...)
		return
	}
	globalLogger.Printf("["+level+"] "+format, v...)
}

// Info logs an info message.
func Info(format string, v ...interface{}) { printf("INFO", "", format, v...) }

// Debug logs a debug message.
func Debug(format string, v ...interface{}) { printf("DEBUG", "", format, v...) }

// Error logs an error message.
func Error(format string, v ...interface{}) { printf("ERROR", "", format, v...) }

// Warn logs a warning message.
func Warn(format string, v ...interface{}) { printf("WARN", "", format, v...) }

// Scoped tags every line with a fixed prefix, typically the device a worker
// is driving, so interleaved parallel output stays readable.
type Scoped struct {
	prefix string
}

// For returns a logger whose lines carry the given prefix.
func For(prefix string) Scoped {
	return Scoped{prefix: prefix}
}

// Info logs an info message.
func (s Scoped) Info(format string, v ...interface{}) { printf("INFO", s.prefix, format, v...) }

// Debug logs a debug message.
func (s Scoped) Debug(format string, v ...interface{}) { printf("DEBUG", s.prefix, format, v...) }

// Error logs an error message.
func (s Scoped) Error(format string, v ...interface{}) { printf("ERROR", s.prefix, format, v...) }

// Warn logs a warning message.
func (s Scoped) Warn(format string, v ...interface{}) { printf("WARN", s.prefix, format, v...) }
