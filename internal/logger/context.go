package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds operation-scoped logging context for a single backup,
// restore, validate, or gc invocation.
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	Operation string    // backup, restore, validate, gc, ls, versions
	Archive   string    // archive transport URL
	Band      string    // band id being operated on (b000001, ...)
	Apath     string    // entry path currently being processed
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for the given operation.
func NewLogContext(operation string) *LogContext {
	return &LogContext{
		Operation: operation,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:   lc.TraceID,
		SpanID:    lc.SpanID,
		Operation: lc.Operation,
		Archive:   lc.Archive,
		Band:      lc.Band,
		Apath:     lc.Apath,
		StartTime: lc.StartTime,
	}
}

// WithArchive returns a copy with the archive location set
func (lc *LogContext) WithArchive(archive string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Archive = archive
	}
	return clone
}

// WithBand returns a copy with the band id set
func (lc *LogContext) WithBand(band string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Band = band
	}
	return clone
}

// WithApath returns a copy with the current apath set
func (lc *LogContext) WithApath(apath string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Apath = apath
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
