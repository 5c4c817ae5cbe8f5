package trace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// ExportOTel replays a finished trace onto an OpenTelemetry tracer. A
// parent span covers the whole chain and every recorded invocation
// becomes a child span with its original timestamps.
func ExportOTel(ctx context.Context, tracer oteltrace.Tracer, tr Trace) {
	if len(tr.Spans) == 0 {
		return
	}

	last := tr.Spans[0].End
	for _, s := range tr.Spans {
		if s.End.After(last) {
			last = s.End
		}
	}

	ctx, parent := tracer.Start(
		ctx,
		"toolmesh.chain",
		oteltrace.WithTimestamp(tr.Spans[0].Start),
		oteltrace.WithAttributes(
			attribute.String("toolmesh.correlation_id", tr.CorrelationID),
			attribute.Int("toolmesh.span_count", len(tr.Spans)),
		),
	)

	for _, s := range tr.Spans {
		_, child := tracer.Start(
			ctx,
			s.Tool,
			oteltrace.WithTimestamp(s.Start),
			oteltrace.WithSpanKind(oteltrace.SpanKindInternal),
			oteltrace.WithAttributes(
				attribute.String("toolmesh.tool", s.Tool),
				attribute.String("toolmesh.correlation_id", tr.CorrelationID),
			),
		)

		if s.Success {
			child.SetStatus(codes.Ok, "")
		} else {
			child.SetStatus(codes.Error, s.Error)
		}

		child.End(oteltrace.WithTimestamp(s.End))
	}

	parent.SetStatus(codes.Ok, "")
	parent.End(oteltrace.WithTimestamp(last))
}
