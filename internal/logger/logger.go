// Package logger provides contextual structured logging on top of
// zerolog, matching the ContextF-style call shape used throughout the
// teacher codebase's channel and media packages: a short context
// label, a human message, and a bag of structured fields.
package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu  sync.RWMutex
	log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
)

// Configure replaces the global logger's output and level. level is a
// zerolog level name ("debug", "info", "warn", "error"); unrecognized
// values fall back to "info". json selects the console writer (false)
// or raw JSON lines (true), the latter for production log aggregation.
func Configure(w io.Writer, level string, json bool) {
	mu.Lock()
	defer mu.Unlock()

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	out := w
	if !json {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	log = zerolog.New(out).With().Timestamp().Logger().Level(lvl)
}

func event(e *zerolog.Event, ctx, msg string, fields map[string]any) {
	e = e.Str("context", ctx)
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

// DebugCF logs a debug-level message tagged with a context label and
// structured fields.
func DebugCF(ctx, msg string, fields map[string]any) {
	mu.RLock()
	defer mu.RUnlock()
	event(log.Debug(), ctx, msg, fields)
}

// InfoCF logs an info-level message tagged with a context label and
// structured fields.
func InfoCF(ctx, msg string, fields map[string]any) {
	mu.RLock()
	defer mu.RUnlock()
	event(log.Info(), ctx, msg, fields)
}

// WarnCF logs a warn-level message tagged with a context label and
// structured fields.
func WarnCF(ctx, msg string, fields map[string]any) {
	mu.RLock()
	defer mu.RUnlock()
	event(log.Warn(), ctx, msg, fields)
}

// ErrorCF logs an error-level message tagged with a context label and
// structured fields.
func ErrorCF(ctx, msg string, fields map[string]any) {
	mu.RLock()
	defer mu.RUnlock()
	event(log.Error(), ctx, msg, fields)
}

// FatalCF logs a fatal-level message and terminates the process. Used
// only for startup errors (ConfigError, initial DatabaseError) per the
// reconciler's error-handling design: per-tick errors must never call
// this.
func FatalCF(ctx, msg string, fields map[string]any) {
	mu.RLock()
	defer mu.RUnlock()
	event(log.Fatal(), ctx, msg, fields)
}
