// Package log implements support for structured logging.
package log

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// log.DefaultCaller + 2 for this module's leveling wrappers.
const defaultCallerUnwind = 5

// Logger is a structured logger.
type Logger struct {
	logger log.Logger
	level  Level
	module string

	// Kept so that WithCallerUnwind can rebuild the prefix chain.
	base   log.Logger
	extras []interface{}
}

// NewDefaultLogger initializes a new logger instance with default settings.
// For usage outside tests, prefer RootLogger() from package `cmd/common`.
func NewDefaultLogger(module string) *Logger {
	logger, err := NewLogger(module, os.Stdout, FmtJSON, LevelInfo)
	if err != nil {
		// Shouldn't happen as NewLogger can only fail if an invalid format is provided.
		panic(err)
	}
	return logger
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *Logger {
	return &Logger{
		logger: log.NewNopLogger(),
		base:   log.NewNopLogger(),
		level:  LevelError,
		module: "nop",
	}
}

// NewLogger initializes a new logger instance.
func NewLogger(module string, w io.Writer, format Format, lvl Level) (*Logger, error) {
	var base log.Logger
	switch format {
	case FmtLogfmt:
		base = log.NewLogfmtLogger(log.NewSyncWriter(w))
	case FmtJSON:
		base = log.NewJSONLogger(log.NewSyncWriter(w))
	default:
		return nil, fmt.Errorf("log: unsupported log format: %v", format)
	}

	return &Logger{
		logger: withPrefixes(base, defaultCallerUnwind),
		base:   base,
		level:  lvl,
		module: module,
	}, nil
}

func withPrefixes(base log.Logger, callerUnwind int) log.Logger {
	return log.WithPrefix(base,
		"ts", log.DefaultTimestampUTC,
		"caller", log.Caller(callerUnwind),
	)
}

func (l *Logger) log(lvl Level, leveled func(log.Logger) log.Logger, msg string, keyvals []interface{}) {
	if l.level > lvl {
		return
	}
	keyvals = append([]interface{}{"module", l.module, "msg", msg}, keyvals...)
	_ = leveled(l.logger).Log(keyvals...)
}

// Debug logs the message and key value pairs at the Debug log level.
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.log(LevelDebug, level.Debug, msg, keyvals)
}

// Info logs the message and key value pairs at the Info log level.
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.log(LevelInfo, level.Info, msg, keyvals)
}

// Warn logs the message and key value pairs at the Warn log level.
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.log(LevelWarn, level.Warn, msg, keyvals)
}

// Error logs the message and key value pairs at the Error log level.
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.log(LevelError, level.Error, msg, keyvals)
}

// With returns a clone of the logger with the provided key/value pairs
// added as context for all subsequent logs.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	extras := append(append([]interface{}{}, l.extras...), keyvals...)
	return &Logger{
		logger: log.With(l.logger, keyvals...),
		base:   l.base,
		extras: extras,
		level:  l.level,
		module: l.module,
	}
}

// WithModule returns a clone of the logger with the provided module
// added as context for all subsequent logs.
func (l *Logger) WithModule(module string) *Logger {
	clone := *l
	clone.module = module
	return &clone
}

// WithCallerUnwind returns a clone of the logger whose "caller" field skips
// the given number of stack frames. Useful when the logger is wrapped by a
// third-party logging adapter.
func (l *Logger) WithCallerUnwind(unwind int) *Logger {
	clone := *l
	clone.logger = withPrefixes(l.base, unwind)
	if len(l.extras) > 0 {
		clone.logger = log.With(clone.logger, l.extras...)
	}
	return &clone
}

// Level is the logging level.
func (l *Logger) Level() Level {
	return l.level
}

// writerLogger adapts a Logger to an io.Writer. Every write becomes one
// Info-level message.
type writerLogger struct {
	logger Logger
}

func (w writerLogger) Write(p []byte) (int, error) {
	w.logger.Info(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}

// WriterIntoLogger returns an io.Writer that forwards each write to the logger.
// Intended for libraries that only accept a stdlib *log.Logger.
func WriterIntoLogger(logger Logger) io.Writer {
	return writerLogger{logger: logger}
}
