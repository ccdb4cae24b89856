// Package colog provides the runtime's structured logging facade: a thin
// wrapper around github.com/joeycumines/logiface, backed by
// github.com/joeycumines/stumpy's JSON encoder, instance-scoped rather than
// a package-level global so the scheduler, parking lot, and mutex family
// can each be handed (or denied) a logger explicitly instead of reaching
// for ambient state.
package colog

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the runtime's structured logger handle.
type Logger struct {
	l *logiface.Logger[*stumpy.Event]
}

// NewDefault builds a Logger that writes newline-delimited JSON to w
// (os.Stderr if w is nil) at the given minimum level.
func NewDefault(w io.Writer, level logiface.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{
		l: stumpy.L.New(
			stumpy.L.WithStumpy(stumpy.WithWriter(w)),
			stumpy.L.WithLevel(level),
		),
	}
}

// NoOp builds a Logger with logging disabled entirely — used by components
// under test, or embedders that don't want this runtime's diagnostics.
func NoOp() *Logger {
	return &Logger{l: stumpy.L.New(stumpy.L.WithLevel(logiface.LevelDisabled))}
}

// Warn logs a warning-level message with the given fields, formatted as
// alternating key/value string pairs.
func (lg *Logger) Warn(msg string, fields ...string) {
	lg.log(lg.l.Warning(), msg, fields)
}

// Info logs an informational message.
func (lg *Logger) Info(msg string, fields ...string) {
	lg.log(lg.l.Info(), msg, fields)
}

// Error logs an error-level message.
func (lg *Logger) Error(msg string, fields ...string) {
	lg.log(lg.l.Err(), msg, fields)
}

func (lg *Logger) log(b *logiface.Builder[*stumpy.Event], msg string, fields []string) {
	for i := 0; i+1 < len(fields); i += 2 {
		b = b.Str(fields[i], fields[i+1])
	}
	b.Log(msg)
}
