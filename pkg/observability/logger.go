package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

const (
	attrTraceID = "trace_id"
	attrSpanID  = "span_id"
	attrService = "service"
	attrVersion = "version"
)

// TracingHandler tags every record with the binary's service name and
// version, plus trace_id and span_id when the record's context holds a span.
type TracingHandler struct {
	next slog.Handler
}

// NewTracingHandler wraps next. The service attributes are bound before any
// group is opened, so they always sit at the top level. An empty version is
// omitted.
func NewTracingHandler(next slog.Handler, service, version string) *TracingHandler {
	binary := []slog.Attr{slog.String(attrService, service)}
	if version != "" {
		binary = append(binary, slog.String(attrVersion, version))
	}

	return &TracingHandler{next: next.WithAttrs(binary)}
}

// Enabled implements [slog.Handler].
func (h *TracingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements [slog.Handler].
func (h *TracingHandler) Handle(ctx context.Context, record slog.Record) error {
	record.AddAttrs(spanAttrs(ctx)...)

	err := h.next.Handle(ctx, record)
	if err != nil {
		return fmt.Errorf("tracing handler: %w", err)
	}

	return nil
}

// WithAttrs implements [slog.Handler].
func (h *TracingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TracingHandler{next: h.next.WithAttrs(attrs)}
}

// WithGroup implements [slog.Handler].
func (h *TracingHandler) WithGroup(name string) slog.Handler {
	return &TracingHandler{next: h.next.WithGroup(name)}
}

func spanAttrs(ctx context.Context) []slog.Attr {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}

	return []slog.Attr{
		slog.String(attrTraceID, sc.TraceID().String()),
		slog.String(attrSpanID, sc.SpanID().String()),
	}
}
