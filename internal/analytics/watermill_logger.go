// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

package analytics

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// watermillLogger adapts zerolog to watermill.LoggerAdapter so the bus logs
// through the same pipeline as everything else.
type watermillLogger struct {
	logger zerolog.Logger
}

func newWatermillLogger(logger zerolog.Logger) watermill.LoggerAdapter {
	return &watermillLogger{logger: logger}
}

func (w *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.event(w.logger.Error().Err(err), msg, fields)
}

func (w *watermillLogger) Info(msg string, fields watermill.LogFields) {
	w.event(w.logger.Debug(), msg, fields) // bus chatter is debug-level noise
}

func (w *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.event(w.logger.Debug(), msg, fields)
}

func (w *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.event(w.logger.Trace(), msg, fields)
}

func (w *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	ctx := w.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &watermillLogger{logger: ctx.Logger()}
}

func (w *watermillLogger) event(ev *zerolog.Event, msg string, fields watermill.LogFields) {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}
