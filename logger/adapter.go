package logger

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const maskValue = "***"

// sensitiveKeys are field-name fragments whose values never reach the output.
var sensitiveKeys = []string{"password", "passwd", "secret", "token", "connectionstring", "dsn"}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// eventAdapter adapts *zerolog.Event to LogEvent. A nil event (level disabled) is valid;
// zerolog turns every call on it into a no-op.
type eventAdapter struct {
	event *zerolog.Event
}

func newEvent(e *zerolog.Event) LogEvent { return &eventAdapter{event: e} }

func (a *eventAdapter) Str(key, value string) LogEvent {
	if isSensitive(key) {
		value = maskValue
	}
	a.event = a.event.Str(key, value)
	return a
}

func (a *eventAdapter) Int(key string, value int) LogEvent {
	a.event = a.event.Int(key, value)
	return a
}

func (a *eventAdapter) Bool(key string, value bool) LogEvent {
	a.event = a.event.Bool(key, value)
	return a
}

func (a *eventAdapter) Dur(key string, d time.Duration) LogEvent {
	a.event = a.event.Dur(key, d)
	return a
}

func (a *eventAdapter) Err(err error) LogEvent {
	a.event = a.event.Err(err)
	return a
}

func (a *eventAdapter) Interface(key string, i any) LogEvent {
	if isSensitive(key) {
		i = maskValue
	}
	a.event = a.event.Interface(key, i)
	return a
}

func (a *eventAdapter) Msg(msg string) { a.event.Msg(msg) }

func (a *eventAdapter) Msgf(format string, args ...any) { a.event.Msgf(format, args...) }
