// Package reqctx carries per-request tracing identifiers through context.
package reqctx

import (
	"context"

	"github.com/google/uuid"
)

// Trace contains request tracing information.
type Trace struct {
	TraceID   string
	RequestID string
}

type traceKey struct{}

// WithTrace adds Trace to context.
func WithTrace(ctx context.Context, trace *Trace) context.Context {
	return context.WithValue(ctx, traceKey{}, trace)
}

// GetTrace returns Trace from context, or nil.
func GetTrace(ctx context.Context) *Trace {
	if v, ok := ctx.Value(traceKey{}).(*Trace); ok {
		return v
	}
	return nil
}

// GetRequestID returns request ID from context or empty string.
func GetRequestID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.RequestID
	}
	return ""
}

// NewTrace creates a Trace with generated IDs.
func NewTrace() *Trace {
	return &Trace{
		TraceID:   uuid.New().String(),
		RequestID: uuid.New().String(),
	}
}
