package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

var (
	mu sync.RWMutex

	infoLogger *log.Logger

	DebugEnabled = false

	logFile *os.File
)

// Options controls where log lines go.
type Options struct {
	Debug   bool   // include [DEBUG] lines
	Verbose bool   // mirror lines to stderr
	LogPath string // append to this file when set
	Prefix  string // prepended to every line, e.g. the run ID
}

// InitLogging sets up logging based on configuration. Without a log path and
// without Verbose all output is discarded.
func InitLogging(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	closeLocked()
	DebugEnabled = opts.Debug

	var writers []io.Writer

	if opts.LogPath != "" {
		logDir := filepath.Dir(opts.LogPath)
		err := os.MkdirAll(logDir, 0o755)
		if err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		f, err := os.OpenFile(opts.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}

		logFile = f
		writers = append(writers, f)
	}

	if opts.Verbose {
		writers = append(writers, os.Stderr)
	}

	if len(writers) == 0 {
		infoLogger = nil
		return nil
	}

	prefix := ""
	if opts.Prefix != "" {
		prefix = opts.Prefix + " "
	}

	infoLogger = log.New(io.MultiWriter(writers...), prefix, log.Ldate|log.Ltime|log.Lmsgprefix)

	return nil
}

// SetOutput routes all levels to w. Used by tests to capture output.
func SetOutput(w io.Writer, debug bool) {
	mu.Lock()
	defer mu.Unlock()

	DebugEnabled = debug
	infoLogger = log.New(w, "", log.Lmsgprefix)
}

// Close closes the log file if open.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	closeLocked()
	infoLogger = nil
}

func closeLocked() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

func output(level, format string, v ...interface{}) {
	mu.RLock()
	l := infoLogger
	mu.RUnlock()

	if l != nil {
		l.Printf("["+level+"] "+format, v...)
	}
}

func Infof(format string, v ...interface{}) {
	output("INFO", format, v...)
}

// Errorf logs an error message.
func Errorf(format string, v ...interface{}) {
	output("ERROR", format, v...)
}

func Debugf(format string, v ...interface{}) {
	if DebugEnabled {
		output("DEBUG", format, v...)
	}
}

func Warnf(format string, v ...interface{}) {
	output("WARNING", format, v...)
}
