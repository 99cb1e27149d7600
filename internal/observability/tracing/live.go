package tracing

import (
	"context"

	obscontext "github.com/smallbiznis/goalforge/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartFrame opens a span for one client frame on a live socket. The span is
// a child of the handshake span carried by ctx.
func StartFrame(ctx context.Context, frameType, channelID string) (context.Context, trace.Span) {
	return startFrame(ctx, otel.GetTracerProvider(), frameType, channelID)
}

func startFrame(ctx context.Context, tp trace.TracerProvider, frameType, channelID string) (context.Context, trace.Span) {
	if frameType == "" {
		frameType = "unknown"
	}
	attrs := []attribute.KeyValue{attribute.String("goalforge.live.frame", frameType)}
	if channelID != "" {
		attrs = append(attrs, attrLiveChannel.String(channelID))
	}
	if sessionID := obscontext.SessionIDFromContext(ctx); sessionID != "" {
		attrs = append(attrs, attrLiveSession.String(sessionID))
	}
	return tp.Tracer("goalforge/live").Start(ctx, "live "+frameType,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
}

// EndFrame closes a frame span, marking it failed when err is set.
func EndFrame(span trace.Span, err error) {
	if err != nil {
		span.RecordError(SafeError(err))
		span.SetStatus(codes.Error, "frame rejected")
	}
	span.End()
}
