// Package definition holds the small, fixed-shape capability interfaces
// shared across the brezn core: the logger contract and the clock port.
package definition

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the fixed logging capability used throughout the core.
// Components never depend on logrus directly, only on this interface,
// so a host application can plug in its own sink.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	// WithField returns a logger carrying an additional structured field,
	// used to tag log lines with component/peer/circuit identifiers.
	WithField(key string, value interface{}) Logger
}

// DefaultLogger wraps a logrus.Entry, the ambient logging stack shared
// by every component unless the host supplies its own Logger.
type DefaultLogger struct {
	entry *logrus.Entry
}

// NewDefaultLogger builds the default logger, writing structured lines
// to stderr at the given level.
func NewDefaultLogger(component string, debug bool) *DefaultLogger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if debug {
		base.SetLevel(logrus.DebugLevel)
	} else {
		base.SetLevel(logrus.InfoLevel)
	}
	return &DefaultLogger{entry: base.WithField("component", component)}
}

func (l *DefaultLogger) Info(v ...interface{})                  { l.entry.Info(v...) }
func (l *DefaultLogger) Infof(format string, v ...interface{})  { l.entry.Infof(format, v...) }
func (l *DefaultLogger) Warn(v ...interface{})                  { l.entry.Warn(v...) }
func (l *DefaultLogger) Warnf(format string, v ...interface{})  { l.entry.Warnf(format, v...) }
func (l *DefaultLogger) Error(v ...interface{})                 { l.entry.Error(v...) }
func (l *DefaultLogger) Errorf(format string, v ...interface{}) { l.entry.Errorf(format, v...) }
func (l *DefaultLogger) Debug(v ...interface{})                 { l.entry.Debug(v...) }
func (l *DefaultLogger) Debugf(format string, v ...interface{}) { l.entry.Debugf(format, v...) }

func (l *DefaultLogger) WithField(key string, value interface{}) Logger {
	return &DefaultLogger{entry: l.entry.WithField(key, value)}
}

// Clock is the monotonic/wall-clock capability port (§4.7). All "now"
// reads in the core funnel through this interface so tests can control
// time deterministically.
type Clock interface {
	// Now returns the current wall-clock time as Unix seconds, used for
	// Post.Timestamp, PeerInfo.LastSeen, and similar fields.
	Now() uint64
	// Monotonic returns a monotonically increasing duration-comparable
	// value in nanoseconds, used for timeouts and circuit ages.
	Monotonic() int64
}

// SystemClock is the default Clock backed by the OS clock.
type SystemClock struct{}

func (SystemClock) Now() uint64 {
	return uint64(nowUnix())
}

func (SystemClock) Monotonic() int64 {
	return monotonicNanos()
}
