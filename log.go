package riak

import (
	"github.com/sirupsen/logrus"
)

// Logger is the advisory sink the Client writes its list-keys,
// stream-list-keys and list-buckets expense warnings to, rather than a
// hardwired stream, so a host application can route them into its own
// logging pipeline. The pool, dispatcher and connection layers do not
// log through it.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// logrusLogger is the default Logger, backed by a dedicated logrus
// instance so attaching it never mutates logrus's global singleton.
type logrusLogger struct {
	entry *logrus.Logger
}

// NewLogger returns the default logrus-backed Logger.
func NewLogger() Logger {
	l := logrus.New()
	l.SetLevel(logrus.DebugLevel)
	return &logrusLogger{entry: l}
}

func (l *logrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// discardLogger drops everything; used by default in tests and by
// callers who explicitly want silence instead of the logrus default.
type discardLogger struct{}

// NewDiscardLogger returns a Logger that drops all output.
func NewDiscardLogger() Logger { return discardLogger{} }

func (discardLogger) Debugf(string, ...interface{}) {}
func (discardLogger) Infof(string, ...interface{})  {}
func (discardLogger) Warnf(string, ...interface{})  {}
func (discardLogger) Errorf(string, ...interface{}) {}
