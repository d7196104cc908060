package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

const timestampFormat = "2006-01-02 15:04:05.000"

// Logger provides leveled logging with optional file output and daily rotation.
type Logger struct {
	level         string
	writeToStdout bool

	mu         sync.Mutex
	logDir     string // Empty = stdout only
	file       *os.File
	currentDay int // year*1000 + yday, tracks rotation
}

// Options configures the logger behavior.
type Options struct {
	Level         string
	LogDir        string // If set, enables file logging
	WriteToStdout bool
}

// NewLogger creates a logger writing to stdout only.
func NewLogger(level string) *Logger {
	return NewLoggerWithOptions(Options{Level: level, WriteToStdout: true})
}

// NewLoggerWithOptions creates a logger with full configuration.
func NewLoggerWithOptions(opts Options) *Logger {
	level := opts.Level
	if _, ok := levelOrder[level]; !ok {
		level = LevelDebug
	}
	return &Logger{
		level:         level,
		writeToStdout: opts.WriteToStdout,
		logDir:        opts.LogDir,
	}
}

// Close closes the log file handle if one is open.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *Logger) shouldLog(level string) bool {
	return levelOrder[level] >= levelOrder[l.level]
}

func dayKey(t time.Time) int {
	return t.Year()*1000 + t.YearDay()
}

// fileHandleUnsafe returns the current day's log file, rotating when the day
// changes. Caller must hold the mutex.
func (l *Logger) fileHandleUnsafe(now time.Time) (*os.File, error) {
	key := dayKey(now)
	if l.file != nil && key == l.currentDay {
		return l.file, nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	if err := os.MkdirAll(l.logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", l.logDir, err)
	}
	name := now.UTC().Format("2006-01-02") + ".log"
	f, err := os.OpenFile(filepath.Join(l.logDir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	l.file = f
	l.currentDay = key
	return f, nil
}

func (l *Logger) log(level, format string, args ...interface{}) {
	if !l.shouldLog(level) {
		return
	}

	now := time.Now()
	message := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("[%s] %s | %s\n", level, now.Format(timestampFormat), message)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writeToStdout {
		fmt.Print(line)
	}
	if l.logDir != "" {
		if f, err := l.fileHandleUnsafe(now); err == nil {
			f.WriteString(line)
		}
	}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}
