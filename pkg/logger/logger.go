// Package logger provides the process-wide file logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
)

// Fields is an alias so callers do not need to import logrus.
type Fields = logrus.Fields

var (
	globalLogger *logrus.Logger
	logWriter    *rotatelogs.RotateLogs
	mu           sync.Mutex
)

// Init initializes the global logger writing to logPath. The file is rotated
// daily; logPath itself is kept as a link to the current file.
func Init(logPath string, verbose bool) error {
	mu.Lock()
	defer mu.Unlock()

	closeLocked()

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	writer, err := rotatelogs.New(
		logPath+".%Y%m%d",
		rotatelogs.WithLinkName(logPath),
		rotatelogs.WithMaxAge(7*24*time.Hour),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	formatter := &logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000000",
	}
	l.SetFormatter(formatter)

	writers := lfshook.WriterMap{}
	for _, level := range logrus.AllLevels {
		writers[level] = writer
	}
	l.AddHook(lfshook.NewHook(writers, formatter))
	// The hook owns file output.
	l.SetOutput(io.Discard)

	globalLogger = l
	logWriter = writer
	return nil
}

// Close closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
}

func closeLocked() {
	if logWriter != nil {
		logWriter.Close()
		logWriter = nil
	}
	globalLogger = nil
}

func entry(fields Fields) *logrus.Entry {
	mu.Lock()
	defer mu.Unlock()
	if globalLogger == nil {
		return nil
	}
	return globalLogger.WithFields(fields)
}

// Info logs an info message.
func Info(format string, v ...interface{}) {
	if e := entry(nil); e != nil {
		e.Infof(format, v...)
	}
}

// Debug logs a debug message.
func Debug(format string, v ...interface{}) {
	if e := entry(nil); e != nil {
		e.Debugf(format, v...)
	}
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	if e := entry(nil); e != nil {
		e.Errorf(format, v...)
	}
}

// Warn logs a warning message.
func Warn(format string, v ...interface{}) {
	if e := entry(nil); e != nil {
		e.Warnf(format, v...)
	}
}

// WithFields returns an entry carrying structured fields. Without Init
// the entry writes nowhere.
func WithFields(fields Fields) *logrus.Entry {
	if e := entry(fields); e != nil {
		return e
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithFields(fields)
}
