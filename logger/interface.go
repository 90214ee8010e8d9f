// Package logger defines the structured logging contract used across txrouter
// and its zerolog-backed implementation.
package logger

import "time"

// Logger creates leveled log events. Implementations must be safe for concurrent use.
type Logger interface {
	Debug() LogEvent
	Info() LogEvent
	Warn() LogEvent
	Error() LogEvent
	// WithFields returns a logger that adds fields to every event.
	WithFields(fields map[string]any) Logger
}

// LogEvent is a single log entry under construction. Nothing is written until Msg or Msgf.
type LogEvent interface {
	Str(key, value string) LogEvent
	Int(key string, value int) LogEvent
	Bool(key string, value bool) LogEvent
	Dur(key string, d time.Duration) LogEvent
	Err(err error) LogEvent
	Interface(key string, i any) LogEvent
	Msg(msg string)
	Msgf(format string, args ...any)
}
