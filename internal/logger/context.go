package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context for a single VFS callback
// or transfer-coordinator call.
type LogContext struct {
	Operation string    // VFS operation name (open, read, write, mkdir, ...)
	Path      string    // overlay-tree path the operation targets
	TrackID   int       // TFS track id, -1 if not applicable
	StartTime time.Time // for duration calculation
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

// NewLogContext creates a new LogContext for the named operation.
func NewLogContext(operation, path string) *LogContext {
	return &LogContext{
		Operation: operation,
		Path:      path,
		TrackID:   -1,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithTrackID returns a copy with the track id set.
func (lc *LogContext) WithTrackID(trackID int) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TrackID = trackID
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
