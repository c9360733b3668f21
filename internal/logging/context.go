package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	sessionIDKey ctxKey = iota
	nodeIDKey
	workflowIDKey
)

// correlationKeys lists the context keys in the order their attributes are emitted.
var correlationKeys = []struct {
	key  ctxKey
	attr string
}{
	{sessionIDKey, "session_id"},
	{nodeIDKey, "node_id"},
	{workflowIDKey, "workflow_id"},
}

// WithSessionID returns a context with the session ID set.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// WithNodeID returns a context with the node ID set.
func WithNodeID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, nodeIDKey, id)
}

// WithWorkflowID returns a context with the workflow ID set.
func WithWorkflowID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workflowIDKey, id)
}

// SessionID extracts the session ID from the context, or "" if absent.
func SessionID(ctx context.Context) string { return lookup(ctx, sessionIDKey) }

// NodeID extracts the node ID from the context, or "" if absent.
func NodeID(ctx context.Context) string { return lookup(ctx, nodeIDKey) }

// WorkflowID extracts the workflow ID from the context, or "" if absent.
func WorkflowID(ctx context.Context) string { return lookup(ctx, workflowIDKey) }

func lookup(ctx context.Context, key ctxKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// WithIDs sets all three correlation IDs on the context at once.
// Empty values are skipped so an outer ID is not shadowed.
func WithIDs(ctx context.Context, sessionID, nodeID, workflowID string) context.Context {
	if sessionID != "" {
		ctx = WithSessionID(ctx, sessionID)
	}
	if nodeID != "" {
		ctx = WithNodeID(ctx, nodeID)
	}
	if workflowID != "" {
		ctx = WithWorkflowID(ctx, workflowID)
	}
	return ctx
}

// correlationAttrs returns the non-empty correlation IDs in ctx as log attributes.
func correlationAttrs(ctx context.Context) []slog.Attr {
	var out []slog.Attr
	for _, k := range correlationKeys {
		if v := lookup(ctx, k.key); v != "" {
			out = append(out, slog.String(k.attr, v))
		}
	}
	return out
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range correlationAttrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(correlationAttrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
