// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package stage

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/stage/backend/soft"
	"github.com/gogpu/stage/backend/wgpu"
	"github.com/gogpu/stage/frame"
	"github.com/gogpu/stage/picking"
	"github.com/gogpu/stage/resource"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for stage and all its sub-packages.
// By default, stage produces no log output. Pass nil to restore the
// silent default.
//
// Log levels used by stage:
//   - [slog.LevelDebug]: per-frame detail (uploads, draw counts, readbacks)
//   - [slog.LevelInfo]: lifecycle events (device attached, budget changes)
//   - [slog.LevelWarn]: recoverable trouble (upload failures, evictions, timeouts)
//   - [slog.LevelError]: device loss
//
// Example:
//
//	stage.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	resource.SetLogger(l)
	picking.SetLogger(l)
	frame.SetLogger(l)
	soft.SetLogger(l)
	wgpu.SetLogger(l)
}

// Logger returns the current logger used by stage.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
