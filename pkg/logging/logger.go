package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

const (
	FormatLogfmt = "logfmt"
	FormatJSON   = "json"
)

type Logger interface {
	Info(message string, keyvals ...interface{})
	Debug(message string, keyvals ...interface{})
	Error(err error, message string, keyvals ...interface{})
	Warn(message string, keyvals ...interface{})
	With(keyvals ...interface{}) Logger
	IsDebugEnabled() bool
}

type gokitLogger struct {
	logger       log.Logger
	debugEnabled bool
}

// ValidateFormat returns an error for any log format other than logfmt or json.
func ValidateFormat(format string) error {
	switch format {
	case FormatLogfmt, FormatJSON:
		return nil
	default:
		return fmt.Errorf("unsupported log format %q, must be one of %q or %q", format, FormatLogfmt, FormatJSON)
	}
}

// NewLogger returns a Logger writing to stderr.
func NewLogger(format string, debugEnabled bool, keyvals ...interface{}) Logger {
	return NewWriterLogger(os.Stderr, format, debugEnabled, keyvals...)
}

func NewWriterLogger(w io.Writer, format string, debugEnabled bool, keyvals ...interface{}) Logger {
	var logger log.Logger
	if format == FormatJSON {
		logger = log.NewJSONLogger(log.NewSyncWriter(w))
	} else {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(w))
	}

	if debugEnabled {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.Caller(4))
	logger = log.With(logger, keyvals...)

	return gokitLogger{
		logger:       logger,
		debugEnabled: debugEnabled,
	}
}

func NewNopLogger() Logger {
	return gokitLogger{logger: log.NewNopLogger()}
}

func (g gokitLogger) Debug(message string, keyvals ...interface{}) {
	if g.debugEnabled {
		level.Debug(g.logger).Log(withMessage(message, keyvals)...)
	}
}

func (g gokitLogger) Info(message string, keyvals ...interface{}) {
	level.Info(g.logger).Log(withMessage(message, keyvals)...)
}

func (g gokitLogger) Error(err error, message string, keyvals ...interface{}) {
	kv := []interface{}{"msg", message, "err", err}
	kv = append(kv, keyvals...)
	level.Error(g.logger).Log(kv...)
}

func (g gokitLogger) Warn(message string, keyvals ...interface{}) {
	level.Warn(g.logger).Log(withMessage(message, keyvals)...)
}

func (g gokitLogger) With(keyvals ...interface{}) Logger {
	return gokitLogger{
		logger:       log.With(g.logger, keyvals...),
		debugEnabled: g.debugEnabled,
	}
}

func (g gokitLogger) IsDebugEnabled() bool {
	return g.debugEnabled
}

func withMessage(message string, keyvals []interface{}) []interface{} {
	kv := make([]interface{}, 0, len(keyvals)+2)
	kv = append(kv, "msg", message)
	return append(kv, keyvals...)
}
