package logger

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ZeroLogger implements Logger on top of zerolog.
type ZeroLogger struct {
	zlog zerolog.Logger
}

var _ Logger = (*ZeroLogger)(nil)

var callerMarshalOnce sync.Once

// New creates a logger writing JSON lines to stdout, or human readable output when pretty is set.
// Unknown levels fall back to info.
func New(level string, pretty bool) *ZeroLogger {
	return NewWithWriter(os.Stdout, level, pretty)
}

// NewWithWriter is New with an explicit output.
func NewWithWriter(w io.Writer, level string, pretty bool) *ZeroLogger {
	callerMarshalOnce.Do(func() {
		zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
			return filepath.Base(filepath.Dir(file)) + "/" + filepath.Base(file) + ":" + strconv.Itoa(line)
		}
	})

	out := w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	zl := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	return &ZeroLogger{zlog: zl}
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return &ZeroLogger{zlog: zerolog.Nop()}
}

// Debug implements Logger.
func (l *ZeroLogger) Debug() LogEvent { return newEvent(l.zlog.Debug()) }

// Info implements Logger.
func (l *ZeroLogger) Info() LogEvent { return newEvent(l.zlog.Info()) }

// Warn implements Logger.
func (l *ZeroLogger) Warn() LogEvent { return newEvent(l.zlog.Warn()) }

// Error implements Logger.
func (l *ZeroLogger) Error() LogEvent { return newEvent(l.zlog.Error()) }

// WithFields implements Logger. Sensitive values are masked.
func (l *ZeroLogger) WithFields(fields map[string]any) Logger {
	masked := make(map[string]any, len(fields))
	for k, v := range fields {
		if isSensitive(k) {
			v = maskValue
		}
		masked[k] = v
	}
	return &ZeroLogger{zlog: l.zlog.With().Fields(masked).Logger()}
}
