// Package logging defines the structured-logging interface used by authcore
// components. The slog adapter is the only production implementation.
package logging

import (
	"context"
	"log/slog"
)

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key-value pairs, e.g.:
//
//	log.Error(ctx, "refresh token reuse detected", "family_id", fid, "user_id", uid)
type Logger interface {
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key-value pairs.
	With(args ...any) Logger
}

// New wraps l. A nil l yields a logger that discards everything.
func New(l *slog.Logger) Logger {
	if l == nil {
		return Nop()
	}
	return &SlogLogger{l: l}
}

// Nop returns a Logger that drops every record.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) Logger                  { return n }
