package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/petrijr/pageflow/pkg/api"
)

const instrumentationName = "github.com/petrijr/pageflow"

// TracingObserver records flow activity as OpenTelemetry span events.
//
// Events are added to the span found in the callback's context. Without a
// recording span, a short span carrying the single event is emitted instead.
type TracingObserver struct {
	tracer trace.Tracer
}

var _ api.Observer = (*TracingObserver)(nil)

// NewTracingObserver uses tp, or the global tracer provider when tp is nil.
func NewTracingObserver(tp trace.TracerProvider) *TracingObserver {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TracingObserver{tracer: tp.Tracer(instrumentationName)}
}

func (o *TracingObserver) record(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
		return
	}
	_, span = o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	span.AddEvent(name, trace.WithAttributes(attrs...))
	span.End()
}

func flowAttrs(flow api.Flow) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("pageflow.flow", flow.Name()),
		attribute.String("pageflow.ticket", flow.ID()),
	}
}

func (o *TracingObserver) OnFlowStart(ctx context.Context, flow api.Flow) {
	o.record(ctx, "pageflow.start", append(flowAttrs(flow),
		attribute.String("pageflow.state", flow.CurrentState()),
	)...)
}

func (o *TracingObserver) OnTransition(ctx context.Context, flow api.Flow, from, to, event string) {
	o.record(ctx, "pageflow.transition", append(flowAttrs(flow),
		attribute.String("pageflow.from", from),
		attribute.String("pageflow.to", to),
		attribute.String("pageflow.event", event),
	)...)
}

func (o *TracingObserver) OnInvalidEvent(ctx context.Context, flow api.Flow, state, event string) {
	o.record(ctx, "pageflow.invalid_event", append(flowAttrs(flow),
		attribute.String("pageflow.state", state),
		attribute.String("pageflow.event", event),
	)...)
}

func (o *TracingObserver) OnFlowFinal(ctx context.Context, flow api.Flow) {
	o.record(ctx, "pageflow.final", flowAttrs(flow)...)
}

func (o *TracingObserver) OnSweep(ctx context.Context, ticket string) {
	o.record(ctx, "pageflow.sweep", attribute.String("pageflow.ticket", ticket))
}
