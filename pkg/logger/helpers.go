package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogCandidate logs the outcome for a single candidate image.
// reason is empty when the image was persisted.
func LogCandidate(l Logger, index int, url, fingerprint, reason string, err error) {
	fields := map[string]interface{}{
		"index": index,
		"url":   url,
	}
	if fingerprint != "" {
		fields["fingerprint"] = fingerprint
	}

	switch {
	case reason == "":
		l.InfoWithFields("Image saved", fields)
	case err != nil:
		fields["reason"] = reason
		l.WithError(err).WarnWithFields("Candidate skipped", fields)
	default:
		fields["reason"] = reason
		l.DebugWithFields("Candidate skipped", fields)
	}
}

// LogScrollRound logs one expansion round of the results page
func LogScrollRound(l Logger, round, height, noGrowth int) {
	l.DebugWithFields("Scroll round", map[string]interface{}{
		"round":     round,
		"height":    height,
		"no_growth": noGrowth,
	})
}

// LogSessionSummary logs the counts for a finished query
func LogSessionSummary(l Logger, query string, downloaded, skipped int, elapsed time.Duration) {
	l.InfoWithFields("Session finished", map[string]interface{}{
		"query":      query,
		"downloaded": downloaded,
		"skipped":    skipped,
		"elapsed":    elapsed,
	})
}

// LogComponentStart logs when a component starts
func LogComponentStart(component string, config map[string]interface{}) {
	logger := GetLogger().WithField("component", component)

	if len(config) > 0 {
		logger = logger.WithFields(config)
	}

	logger.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(component string, reason string) {
	GetLogger().WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}

func (n *nopLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}
