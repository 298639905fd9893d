package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	mu         sync.RWMutex
	logger     zerolog.Logger
	loggerOnce sync.Once
)

// initLogger initializes the global logger to write to stderr with timestamps.
func initLogger() {
	loggerOnce.Do(func() {
		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		logger = zerolog.New(output).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	})
}

// SetOutput redirects log lines, mostly for tests and -once runs.
func SetOutput(w io.Writer) {
	initLogger()
	mu.Lock()
	defer mu.Unlock()
	logger = logger.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true})
}

func SetLevel(l Level) {
	initLogger()
	mu.Lock()
	defer mu.Unlock()
	logger = logger.Level(toZerolog(l))
}

// ParseLevel maps config strings ("debug", "info", ...) to a Level.
// Unknown values map to LevelInfo.
func ParseLevel(s string) Level {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn, "WARNING":
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

func toZerolog(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func Debug(msg string, kv ...any) {
	withLogger(func(l *zerolog.Logger) { emit(l.Debug(), msg, kv) })
}

func Info(msg string, kv ...any) {
	withLogger(func(l *zerolog.Logger) { emit(l.Info(), msg, kv) })
}

func Warn(msg string, kv ...any) {
	withLogger(func(l *zerolog.Logger) { emit(l.Warn(), msg, kv) })
}

func Error(msg string, err error, kv ...any) {
	withLogger(func(l *zerolog.Logger) { emit(l.Error().Err(err), msg, kv) })
}

func withLogger(fn func(*zerolog.Logger)) {
	initLogger()
	mu.RLock()
	l := logger
	mu.RUnlock()
	fn(&l)
}

// emit attaches kv as key/value pairs. Non-string keys are skipped and an
// odd trailing value is ignored.
func emit(ev *zerolog.Event, msg string, kv []any) {
	if ev == nil {
		return
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, kv[i+1])
	}
	ev.Msg(msg)
}
