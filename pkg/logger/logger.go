// Package logger wraps logrus with a per-component default configuration.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a logrus logger bound to a component name.
type Logger struct {
	*logrus.Logger
	component string
}

// Options configures a Logger.
type Options struct {
	Level  string
	Format string // "json" or "text"
	Output io.Writer
}

// New creates a component logger with the given options.
func New(component string, opts Options) *Logger {
	base := logrus.New()
	if opts.Output != nil {
		base.SetOutput(opts.Output)
	} else {
		base.SetOutput(os.Stderr)
	}
	base.SetLevel(ParseLevel(opts.Level))
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return &Logger{Logger: base, component: component}
}

// NewDefault creates an info-level text logger for the component.
func NewDefault(component string) *Logger {
	return New(component, Options{})
}

// ParseLevel converts a level name into a logrus level, defaulting to info.
func ParseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// Named returns a logger for a sub-component sharing output, level and formatter.
func (l *Logger) Named(component string) *Logger {
	if l == nil {
		return NewDefault(component)
	}
	name := component
	if l.component != "" {
		name = l.component + "." + component
	}
	return &Logger{Logger: l.Logger, component: name}
}

// Component returns the component name attached to every entry.
func (l *Logger) Component() string { return l.component }

func (l *Logger) entry() *logrus.Entry {
	return l.Logger.WithField("component", l.component)
}

// WithField returns an entry carrying the component and the given field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.entry().WithField(key, value)
}

// WithFields returns an entry carrying the component and the given fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.entry().WithFields(fields)
}

// WithError returns an entry carrying the component and the error.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.entry().WithError(err)
}

func (l *Logger) Debug(args ...interface{}) { l.entry().Debug(args...) }
func (l *Logger) Info(args ...interface{})  { l.entry().Info(args...) }
func (l *Logger) Warn(args ...interface{})  { l.entry().Warn(args...) }
func (l *Logger) Error(args ...interface{}) { l.entry().Error(args...) }

func (l *Logger) Infof(format string, args ...interface{}) { l.entry().Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{}) { l.entry().Warnf(format, args...) }
