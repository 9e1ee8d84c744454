package logger

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// LogMessage represents a captured log message
type LogMessage struct {
	Level   string
	Message string
	Fields  map[string]interface{}
	Error   error
}

// sink is the shared capture buffer behind a TestLogger and every logger derived from it
type sink struct {
	mu       sync.Mutex
	messages []LogMessage
	buffer   bytes.Buffer
}

// TestLogger is a logger implementation for testing that captures all log messages.
// Loggers returned by WithField, WithFields and WithError write into the same capture.
type TestLogger struct {
	sink   *sink
	fields map[string]interface{}
	err    error
}

// NewTestLogger creates a new test logger
func NewTestLogger() *TestLogger {
	return &TestLogger{sink: &sink{}}
}

func (l *TestLogger) Debug(msg string) { l.log("DEBUG", msg, nil) }
func (l *TestLogger) Info(msg string)  { l.log("INFO", msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.log("WARN", msg, nil) }
func (l *TestLogger) Error(msg string) { l.log("ERROR", msg, nil) }

func (l *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.log("DEBUG", msg, fields)
}

func (l *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.log("INFO", msg, fields)
}

func (l *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.log("WARN", msg, fields)
}

func (l *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.log("ERROR", msg, fields)
}

// WithError returns a logger that attaches err to every message
func (l *TestLogger) WithError(err error) Logger {
	return &TestLogger{sink: l.sink, fields: l.fields, err: err}
}

// WithField returns a logger carrying an extra field
func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a logger carrying extra fields
func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	return &TestLogger{sink: l.sink, fields: l.merge(fields), err: l.err}
}

func (l *TestLogger) WithContext(ctx context.Context) Logger {
	return l
}

func (l *TestLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}

func (l *TestLogger) merge(additional map[string]interface{}) map[string]interface{} {
	if len(l.fields) == 0 && len(additional) == 0 {
		return nil
	}
	merged := make(map[string]interface{}, len(l.fields)+len(additional))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range additional {
		merged[k] = v
	}
	return merged
}

func (l *TestLogger) log(level, msg string, fields map[string]interface{}) {
	all := l.merge(fields)

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	l.sink.messages = append(l.sink.messages, LogMessage{
		Level:   level,
		Message: msg,
		Fields:  all,
		Error:   l.err,
	})

	fmt.Fprintf(&l.sink.buffer, "[%s] %s", level, msg)
	if len(all) > 0 {
		fmt.Fprintf(&l.sink.buffer, " fields=%v", all)
	}
	if l.err != nil {
		fmt.Fprintf(&l.sink.buffer, " error=%v", l.err)
	}
	fmt.Fprintln(&l.sink.buffer)
}

// GetMessages returns all captured log messages
func (l *TestLogger) GetMessages() []LogMessage {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	messages := make([]LogMessage, len(l.sink.messages))
	copy(messages, l.sink.messages)
	return messages
}

// GetMessagesByLevel returns all messages of a specific level
func (l *TestLogger) GetMessagesByLevel(level string) []LogMessage {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	var filtered []LogMessage
	for _, msg := range l.sink.messages {
		if msg.Level == level {
			filtered = append(filtered, msg)
		}
	}
	return filtered
}

// HasMessage checks if a message with the given text was logged
func (l *TestLogger) HasMessage(text string) bool {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	for _, msg := range l.sink.messages {
		if msg.Message == text {
			return true
		}
	}
	return false
}

// HasError checks if an error was logged
func (l *TestLogger) HasError() bool {
	return len(l.GetMessagesByLevel("ERROR")) > 0
}

// Clear clears all captured messages
func (l *TestLogger) Clear() {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	l.sink.messages = l.sink.messages[:0]
	l.sink.buffer.Reset()
}

// String returns all log messages as a string
func (l *TestLogger) String() string {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	return l.sink.buffer.String()
}
