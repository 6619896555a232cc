package logging

import (
	"log/slog"
	"slices"
	"time"
)

// Attr aliases slog.Attr so callers import only this package.
type Attr = slog.Attr

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

// Error records err under "error". A nil err is logged as "<nil>" rather
// than dropped so a missing cause stays visible.
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

func asArgs(attrs []Attr) []any {
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	return args
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// NewComponentLogger tags logger (or a no-op logger when nil) with
// component, the prefix the console handler prints.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

// Defaults for findings-style records that do not name their own.
const (
	defaultErrorHint = "see the findings report for the affected rows"
	defaultImpact    = "affected rows are left out of the catalog"
)

// WarnWithContext logs a data-quality warning. Every record carries
// event_type, error_hint and impact; attrs may override the last two.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	attrs = withDefault(attrs, String(FieldEventType, eventType))
	attrs = withDefault(attrs, String(FieldErrorHint, defaultErrorHint))
	attrs = withDefault(attrs, String(FieldImpact, defaultImpact))
	logger.Warn(msg, asArgs(attrs)...)
}

// ErrorWithContext logs a failure that stops the run. It carries event_type
// and error_hint but no impact.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	attrs = withDefault(attrs, String(FieldEventType, eventType))
	attrs = withDefault(attrs, String(FieldErrorHint, "check the log file for the full error"))
	logger.Error(msg, asArgs(attrs)...)
}

func withDefault(attrs []Attr, fallback Attr) []Attr {
	if slices.ContainsFunc(attrs, func(a Attr) bool { return a.Key == fallback.Key }) {
		return attrs
	}
	return append(attrs, fallback)
}
