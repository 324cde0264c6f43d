// Package blog provides the leveled, structured logger used throughout the
// DCV engine. It mirrors Boulder's internal blog.Logger convention: every
// component takes a Logger at construction, nothing logs through a package
// global, and audit-level events carry an event_id field for downstream
// correlation.
package blog

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
)

// Logger is the logging interface accepted by every DCV component.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errf(format string, args ...interface{})
	AuditInfof(eventID string, format string, args ...interface{})
	AuditErrf(eventID string, format string, args ...interface{})
}

// logrLogger adapts a logr.Logger (backed by stdr, or any other logr sink the
// caller prefers) to the Logger interface.
type logrLogger struct {
	sink logr.Logger
}

// New returns a Logger backed by the given logr.Logger. Callers that want the
// default stdlib-log-based backend should use NewStdr instead.
func New(sink logr.Logger) Logger {
	return &logrLogger{sink: sink}
}

// NewStdr returns a Logger backed by github.com/go-logr/stdr, the default
// logging backend, named name.
func NewStdr(name string) Logger {
	return New(stdr.New(nil).WithName(name))
}

func (l *logrLogger) Debugf(format string, args ...interface{}) {
	l.sink.V(1).Info(fmt.Sprintf(format, args...))
}

func (l *logrLogger) Infof(format string, args ...interface{}) {
	l.sink.V(0).Info(fmt.Sprintf(format, args...))
}

func (l *logrLogger) Warningf(format string, args ...interface{}) {
	l.sink.Info("WARNING: " + fmt.Sprintf(format, args...))
}

func (l *logrLogger) Errf(format string, args ...interface{}) {
	l.sink.Error(nil, fmt.Sprintf(format, args...))
}

func (l *logrLogger) AuditInfof(eventID string, format string, args ...interface{}) {
	l.sink.WithValues("event_id", eventID).Info(fmt.Sprintf(format, args...))
}

func (l *logrLogger) AuditErrf(eventID string, format string, args ...interface{}) {
	l.sink.WithValues("event_id", eventID).Error(nil, fmt.Sprintf(format, args...))
}
