// Package logging provides the leveled logger used throughout statusnotify.
// Lines go to a local writer and, when configured, to Cloud Logging. Every
// message is scrubbed of credentials first.
package logging

import (
	"fmt"
	"io"
	"log"

	"github.com/andywolf/statusnotify/internal/cloud/gcp"
	"github.com/andywolf/statusnotify/internal/security"
)

// CloudSink receives structured log entries. *gcp.CloudLogger implements it.
type CloudSink interface {
	Log(severity gcp.Severity, message string, labels map[string]string)
}

// Logger logs at DEBUG, INFO, WARNING and ERROR levels.
type Logger struct {
	local    *log.Logger
	cloud    CloudSink
	scrubber *security.Scrubber
	verbose  bool
}

// Option configures a Logger.
type Option func(*Logger)

// WithCloudSink mirrors log entries to a structured sink.
func WithCloudSink(sink CloudSink) Option {
	return func(l *Logger) {
		l.cloud = sink
	}
}

// WithScrubber replaces the default credential scrubber.
func WithScrubber(s *security.Scrubber) Option {
	return func(l *Logger) {
		l.scrubber = s
	}
}

// WithVerbose enables DEBUG output.
func WithVerbose(verbose bool) Option {
	return func(l *Logger) {
		l.verbose = verbose
	}
}

// New creates a Logger writing to w with the given line prefix.
func New(w io.Writer, prefix string, opts ...Option) *Logger {
	l := &Logger{
		local:    log.New(w, prefix, log.LstdFlags),
		scrubber: security.NewScrubber(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Discard returns a Logger that drops everything. Useful in tests.
func Discard() *Logger {
	return New(io.Discard, "")
}

// Scrubber returns the scrubber so callers can register secret values.
func (l *Logger) Scrubber() *security.Scrubber {
	return l.scrubber
}

// Debugf logs at DEBUG level when verbose output is enabled.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if !l.verbose {
		return
	}
	l.emit(gcp.SeverityDebug, "Debug: ", format, args, nil)
}

// Infof logs at INFO level.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.emit(gcp.SeverityInfo, "", format, args, nil)
}

// Warningf logs at WARNING level.
func (l *Logger) Warningf(format string, args ...interface{}) {
	l.emit(gcp.SeverityWarning, "Warning: ", format, args, nil)
}

// Errorf logs at ERROR level.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.emit(gcp.SeverityError, "Error: ", format, args, nil)
}

// InfoWithLabels logs at INFO level and attaches labels to the cloud entry.
func (l *Logger) InfoWithLabels(labels map[string]string, format string, args ...interface{}) {
	l.emit(gcp.SeverityInfo, "", format, args, labels)
}

func (l *Logger) emit(severity gcp.Severity, localPrefix, format string, args []interface{}, labels map[string]string) {
	msg := l.scrubber.Scrub(fmt.Sprintf(format, args...))
	l.local.Printf("%s%s", localPrefix, msg)
	if l.cloud != nil {
		l.cloud.Log(severity, msg, l.scrubber.ScrubMap(labels))
	}
}
