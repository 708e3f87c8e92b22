// Package logging provides the Logger capability threaded through endpoint
// construction, rather than a global logging singleton.
package logging

import (
	golog "gopkg.in/op/go-logging.v1"
)

// Logger is the leveled logging capability ClientEndpoint and ServerEndpoint
// accept as a construction Option. Implementations must be safe for
// concurrent use: the reactor, dispatcher, and heartbeat goroutines all log
// through the same instance.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// noop discards everything. Used as the default when no Logger is supplied,
// so library code never has to nil-check.
type noop struct{}

func (noop) Debugf(string, ...any) {}
func (noop) Infof(string, ...any)  {}
func (noop) Warnf(string, ...any)  {}
func (noop) Errorf(string, ...any) {}

// Noop returns a Logger that discards everything.
func Noop() Logger { return noop{} }

// opLogger adapts gopkg.in/op/go-logging.v1, the leveled module logger
// xendarboh-katzenpost threads through its components by value rather than
// as a package global.
type opLogger struct {
	lg *golog.Logger
}

// NewModuleLogger returns a Logger backed by a named op/go-logging module
// logger, writing through the default (stderr, leveled) backend.
func NewModuleLogger(module string) Logger {
	return &opLogger{lg: golog.MustGetLogger(module)}
}

func (l *opLogger) Debugf(format string, args ...any) { l.lg.Debugf(format, args...) }
func (l *opLogger) Infof(format string, args ...any)  { l.lg.Infof(format, args...) }
func (l *opLogger) Warnf(format string, args ...any)  { l.lg.Warningf(format, args...) }
func (l *opLogger) Errorf(format string, args ...any) { l.lg.Errorf(format, args...) }
