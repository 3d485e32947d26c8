package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/Dr1DeX/orgtree/modules/org/services")

// startOp opens a span for op and returns a finisher that records latency and the outcome.
func startOp(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	started := time.Now()
	ctx, span := tracer.Start(ctx, "org."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		recordOperation(op, started, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
