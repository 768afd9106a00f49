package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds session-scoped logging context for the TDS engine.
type LogContext struct {
	TraceID       string    // OpenTelemetry trace ID
	SpanID        string    // OpenTelemetry span ID
	SessionID     string    // client-generated correlation UUID (diagnostics.Sink)
	SPID          uint16    // server-assigned session id (0 before login completes)
	PacketNo      uint8     // current outbound packet number
	TransactionID uint64    // current MARS transaction id, 0 if none
	ServerAddr    string    // remote server address
	StartTime     time.Time // for duration calculation
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

// NewLogContext creates a new LogContext for a session dialing serverAddr.
func NewLogContext(serverAddr string) *LogContext {
	return &LogContext{
		ServerAddr: serverAddr,
		StartTime:  time.Now(),
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

// WithSPID returns a copy with the server-assigned session id set.
func (lc *LogContext) WithSPID(spid uint16) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.SPID = spid
	}
	return clone
}

// WithTransaction returns a copy with the active MARS transaction id set.
func (lc *LogContext) WithTransaction(txnID uint64) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TransactionID = txnID
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
