package logflags

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is what every zdb layer logs through. The loggers returned by
// ServerLogger, WireLogger and the other layer functions only print
// Debug and Info messages when their layer was selected with --log-output.
type Logger interface {
	// WithField tags every message with key, for example the backend a
	// host logger belongs to.
	WithField(key string, value interface{}) Logger
	WithFields(fields Fields) Logger
	// WithError tags every message with err, used when a client or the gdb
	// stub connection fails.
	WithError(err error) Logger

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Printf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
}

// LoggerFactory builds the Logger of a layer. fields holds the layer tag,
// out is the --log-dest destination or nil for stderr.
type LoggerFactory func(level logrus.Level, fields Fields, out io.Writer) Logger

var loggerFactory LoggerFactory

// SetLoggerFactory replaces the logrus text logger used for every layer.
// Programs embedding the zdb server use it to route layer logs to their
// own logger.
func SetLoggerFactory(lf LoggerFactory) {
	loggerFactory = lf
}

// Fields are the tags attached to a Logger.
type Fields map[string]interface{}

// logrusLogger is the default Logger, an entry of a logrus logger using
// textFormatter.
type logrusLogger struct {
	*logrus.Entry
}

func (l *logrusLogger) WithField(key string, value interface{}) Logger {
	return &logrusLogger{l.Entry.WithField(key, value)}
}

func (l *logrusLogger) WithFields(fields Fields) Logger {
	return &logrusLogger{l.Entry.WithFields(logrus.Fields(fields))}
}

func (l *logrusLogger) WithError(err error) Logger {
	return &logrusLogger{l.Entry.WithError(err)}
}
