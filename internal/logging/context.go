package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	diagramIDKey ctxKey = iota
	actionKey
	nodeIDKey
)

// WithDiagramID returns a context with the diagram (document key) set.
func WithDiagramID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, diagramIDKey, id)
}

// WithAction returns a context with the editor action name set.
func WithAction(ctx context.Context, action string) context.Context {
	return context.WithValue(ctx, actionKey, action)
}

// WithNodeID returns a context with the node ID set.
func WithNodeID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, nodeIDKey, id)
}

// DiagramID extracts the diagram ID from the context, or "" if absent.
func DiagramID(ctx context.Context) string {
	v, _ := ctx.Value(diagramIDKey).(string)
	return v
}

// Action extracts the action name from the context, or "" if absent.
func Action(ctx context.Context) string {
	v, _ := ctx.Value(actionKey).(string)
	return v
}

// NodeID extracts the node ID from the context, or "" if absent.
func NodeID(ctx context.Context) string {
	v, _ := ctx.Value(nodeIDKey).(string)
	return v
}

// WithIDs sets all three correlation values on the context at once.
func WithIDs(ctx context.Context, diagramID, action, nodeID string) context.Context {
	ctx = WithDiagramID(ctx, diagramID)
	ctx = WithAction(ctx, action)
	ctx = WithNodeID(ctx, nodeID)
	return ctx
}

// attrs returns the non-empty correlation attributes of ctx.
func attrs(ctx context.Context) []slog.Attr {
	var out []slog.Attr
	if v := DiagramID(ctx); v != "" {
		out = append(out, slog.String("diagram_id", v))
	}
	if v := Action(ctx); v != "" {
		out = append(out, slog.String("action", v))
	}
	if v := NodeID(ctx); v != "" {
		out = append(out, slog.String("node_id", v))
	}
	return out
}

// LogWith returns a logger enriched with correlation values from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range attrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation values from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and the values appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with correlation injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(attrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(as []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(as)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
