package mocks

import (
	"fmt"
	"sync"

	"github.com/user/videobridge/pkg/ports"
)

// LogEntry is one recorded log call.
type LogEntry struct {
	Level     ports.LogLevel
	Component string
	Msg       string
	Args      []interface{}
}

// Text returns the formatted message.
func (e LogEntry) Text() string { return fmt.Sprintf(e.Msg, e.Args...) }

// Logger is a mock implementation of ports.Logger that records every call.
// Component loggers share the parent's record.
type Logger struct {
	component string
	rec       *logRecord
}

type logRecord struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewLogger creates a new mock Logger.
func NewLogger() *Logger {
	return &Logger{rec: &logRecord{}}
}

func (l *Logger) log(level ports.LogLevel, msg string, args []interface{}) {
	l.rec.mu.Lock()
	defer l.rec.mu.Unlock()
	l.rec.entries = append(l.rec.entries, LogEntry{Level: level, Component: l.component, Msg: msg, Args: args})
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log(ports.LevelDebug, msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log(ports.LevelInfo, msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log(ports.LevelWarn, msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log(ports.LevelError, msg, args) }

func (l *Logger) WithComponent(component string) ports.Logger {
	return &Logger{component: component, rec: l.rec}
}

// Entries returns every recorded call.
func (l *Logger) Entries() []LogEntry {
	l.rec.mu.Lock()
	defer l.rec.mu.Unlock()
	return append([]LogEntry(nil), l.rec.entries...)
}

// Contains reports whether msg was logged, comparing the unformatted key.
func (l *Logger) Contains(msg string) bool {
	for _, e := range l.Entries() {
		if e.Msg == msg {
			return true
		}
	}
	return false
}

var _ ports.Logger = (*Logger)(nil)
