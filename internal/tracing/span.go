package tracing

import (
	"context"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartVisitSpan starts a client span for one synthetic user visit.
func StartVisitSpan(ctx context.Context, tracer trace.Tracer, userID int, target string) (context.Context, trace.Span) {
	name := "visit"
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		path := u.Path
		if path == "" {
			path = "/"
		}
		name = "visit " + u.Host + path
	}
	ctx, span := tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.Int("stresstest.user_id", userID),
		attribute.String("url.full", target),
	)
	return ctx, span
}

// EndSpan finishes a span. A non-empty failure marks the span as errored.
func EndSpan(span trace.Span, failure string, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if failure != "" {
		span.SetStatus(codes.Error, failure)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
