// Package logger provides the structured logging interface used across imgharvest.
//
// It wraps zerolog with a small interface that supports levelled messages,
// attached fields and a process-wide logger. Console output is colored and
// written to stderr; an optional file receives the same records.
//
// Basic Usage:
//
//	err := logger.Initialize(&config.LoggingConfig{Level: "info"})
//
//	logger.Info("Harvester started")
//	logger.WithField("query", "red fox").Info("Session started")
//
// Components receive a Logger value rather than reaching for the global one,
// so tests can pass a TestLogger and assert on the captured messages:
//
//	tl := logger.NewTestLogger()
//	sess := session.New(cfg, deps, tl)
//	...
//	assert.True(t, tl.HasMessage("Session finished"))
package logger
