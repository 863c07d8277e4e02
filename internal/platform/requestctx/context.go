// Package requestctx carries per-request values, the request logger and
// trace metadata, through context without leaking the keys to callers.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	traceKey
)

var nopLogger = zap.NewNop()

// TraceInfo is the trace metadata attached to an inbound request.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger attaches logger to the context. A nil logger is replaced with a
// no-op one so Logger never returns nil.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = nopLogger
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// Logger returns the request logger, falling back to a no-op logger when the
// context carries none.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return nopLogger
	}
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return nopLogger
}

// NoopLogger returns the shared no-op logger.
func NoopLogger() *zap.Logger { return nopLogger }

// WithTrace attaches trace metadata to the context.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceKey, info)
}

// Trace reports the trace metadata on the context, if any.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey).(TraceInfo)
	return info, ok
}

// TraceID returns the trace identifier on the context or the empty string.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}
