// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framepipe

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that discards every record. Enabled returns
// false so callers skip attribute formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the package logger. Renderers created without WithLogger
// read it once at construction.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the default logger for framepipe.
// By default framepipe produces no log output.
//
// Pass nil to restore the silent default. SetLogger is safe for concurrent
// use. Renderers pick up the logger when they are created; use [WithLogger]
// to give a single renderer its own logger.
//
// Log levels used by framepipe:
//   - [slog.LevelDebug]: per-frame diagnostics (slot waits, fence values)
//   - [slog.LevelInfo]: lifecycle events (construction, resize, close)
//   - [slog.LevelWarn]: wait timeouts and release failures
//   - [slog.LevelError]: device loss
//
// Example:
//
//	framepipe.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the current package logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
