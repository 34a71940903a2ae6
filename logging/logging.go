// Package logging provides the structured leveled logger used by every
// Trident component. It mirrors the shape OPA exposes from its own
// logging package (WithFields/leveled methods/GetLevel) so that the rest
// of the codebase can depend on an interface instead of on logrus
// directly.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Level is a logging severity, ordered least to most verbose.
type Level int

const (
	Error Level = iota
	Warn
	Info
	Debug
)

// Fields carries structured key/value context attached to a log entry.
type Fields map[string]interface{}

// Logger is the logging surface every Trident component depends on.
type Logger interface {
	Debug(fmt string, a ...interface{})
	Info(fmt string, a ...interface{})
	Warn(fmt string, a ...interface{})
	Error(fmt string, a ...interface{})
	WithFields(Fields) Logger
	GetLevel() Level
	SetLevel(Level)
}

// StandardLogger is the logrus-backed Logger used outside of tests.
type StandardLogger struct {
	entry *logrus.Entry
	level Level
}

// New returns a StandardLogger writing to stderr at the given level.
func New(level Level) *StandardLogger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(toLogrusLevel(level))
	return &StandardLogger{entry: logrus.NewEntry(l), level: level}
}

func toLogrusLevel(level Level) logrus.Level {
	switch level {
	case Error:
		return logrus.ErrorLevel
	case Warn:
		return logrus.WarnLevel
	case Info:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}

func (s *StandardLogger) Debug(format string, a ...interface{}) { s.entry.Debugf(format, a...) }
func (s *StandardLogger) Info(format string, a ...interface{})  { s.entry.Infof(format, a...) }
func (s *StandardLogger) Warn(format string, a ...interface{})  { s.entry.Warnf(format, a...) }
func (s *StandardLogger) Error(format string, a ...interface{}) { s.entry.Errorf(format, a...) }

func (s *StandardLogger) WithFields(fields Fields) Logger {
	return &StandardLogger{entry: s.entry.WithFields(logrus.Fields(fields)), level: s.level}
}

func (s *StandardLogger) GetLevel() Level { return s.level }

func (s *StandardLogger) SetLevel(level Level) {
	s.level = level
	s.entry.Logger.SetLevel(toLogrusLevel(level))
}

// NoOp discards everything. Used by components that accept a Logger but
// are exercised in tests without one configured.
type NoOp struct{}

func (NoOp) Debug(string, ...interface{})  {}
func (NoOp) Info(string, ...interface{})   {}
func (NoOp) Warn(string, ...interface{})   {}
func (NoOp) Error(string, ...interface{})  {}
func (NoOp) WithFields(Fields) Logger      { return NoOp{} }
func (NoOp) GetLevel() Level               { return Error }
func (NoOp) SetLevel(Level)                {}
