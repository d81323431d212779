package logger

import (
	"context"

	"github.com/google/uuid"
)

// TraceHeader is the request header used to propagate trace IDs.
const TraceHeader = "X-Request-ID"

// WithTraceID stores traceID in ctx, generating a UUID when it is empty.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = NewTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID returns the trace ID carried by ctx, or "".
func GetTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

func NewTraceID() string {
	return uuid.New().String()
}

// Detach returns a background context that keeps ctx's trace ID. Work that
// must outlive the request (event publishing, bundle email) runs on it.
func Detach(ctx context.Context) context.Context {
	return WithTraceID(context.Background(), GetTraceID(ctx))
}
