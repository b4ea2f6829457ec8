package api

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Observer receives callbacks from flow executions and the registry for
// logging and metrics.
//
// Implementations should be fast and non-blocking; they run inline with
// event dispatch and with the sweep.
type Observer interface {
	// OnFlowStart is called once an execution has entered its first state.
	OnFlowStart(ctx context.Context, flow Flow)

	// OnTransition is called after the flow entered a new state, before any
	// follow-up events are processed.
	OnTransition(ctx context.Context, flow Flow, from, to, event string)

	// OnInvalidEvent is called when an event was not accepted by the current
	// state, either because no transition exists or because a guard rejected
	// it.
	OnInvalidEvent(ctx context.Context, flow Flow, state, event string)

	// OnFlowFinal is called when the flow reaches FINAL.
	OnFlowFinal(ctx context.Context, flow Flow)

	// OnSweep is called once per ticket removed by the garbage collector.
	OnSweep(ctx context.Context, ticket string)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnFlowStart(ctx context.Context, flow Flow)                        {}
func (NoopObserver) OnTransition(ctx context.Context, flow Flow, from, to, event string) {}
func (NoopObserver) OnInvalidEvent(ctx context.Context, flow Flow, state, event string)  {}
func (NoopObserver) OnFlowFinal(ctx context.Context, flow Flow)                        {}
func (NoopObserver) OnSweep(ctx context.Context, ticket string)                        {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnFlowStart(ctx context.Context, flow Flow) {
	for _, o := range c.observers {
		o.OnFlowStart(ctx, flow)
	}
}

func (c *CompositeObserver) OnTransition(ctx context.Context, flow Flow, from, to, event string) {
	for _, o := range c.observers {
		o.OnTransition(ctx, flow, from, to, event)
	}
}

func (c *CompositeObserver) OnInvalidEvent(ctx context.Context, flow Flow, state, event string) {
	for _, o := range c.observers {
		o.OnInvalidEvent(ctx, flow, state, event)
	}
}

func (c *CompositeObserver) OnFlowFinal(ctx context.Context, flow Flow) {
	for _, o := range c.observers {
		o.OnFlowFinal(ctx, flow)
	}
}

func (c *CompositeObserver) OnSweep(ctx context.Context, ticket string) {
	for _, o := range c.observers {
		o.OnSweep(ctx, ticket)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs flow lifecycle events
// using the provided slog.Logger. If logger is nil, slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnFlowStart(ctx context.Context, flow Flow) {
	o.Logger.InfoContext(ctx, "flow_start",
		slog.String("flow", flow.Name()),
		slog.String("ticket", flow.ID()),
		slog.String("state", flow.CurrentState()),
	)
}

func (o *LoggingObserver) OnTransition(ctx context.Context, flow Flow, from, to, event string) {
	o.Logger.DebugContext(ctx, "flow_transition",
		slog.String("flow", flow.Name()),
		slog.String("ticket", flow.ID()),
		slog.String("from", from),
		slog.String("to", to),
		slog.String("event", event),
	)
}

func (o *LoggingObserver) OnInvalidEvent(ctx context.Context, flow Flow, state, event string) {
	o.Logger.WarnContext(ctx, "flow_invalid_event",
		slog.String("flow", flow.Name()),
		slog.String("ticket", flow.ID()),
		slog.String("state", state),
		slog.String("event", event),
	)
}

func (o *LoggingObserver) OnFlowFinal(ctx context.Context, flow Flow) {
	o.Logger.InfoContext(ctx, "flow_final",
		slog.String("flow", flow.Name()),
		slog.String("ticket", flow.ID()),
	)
}

func (o *LoggingObserver) OnSweep(ctx context.Context, ticket string) {
	o.Logger.InfoContext(ctx, "continuation_swept",
		slog.String("ticket", ticket),
	)
}

// BasicMetrics collects simple counters.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	flowsStarted  atomic.Int64
	flowsFinished atomic.Int64
	transitions   atomic.Int64
	invalidEvents atomic.Int64
	swept         atomic.Int64
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	FlowsStarted  int64
	FlowsFinished int64
	// ActiveFlows counts flows neither finished nor swept. Flows swept after
	// finishing make it an estimate.
	ActiveFlows int64

	Transitions   int64
	InvalidEvents int64
	Swept         int64
}

func (m *BasicMetrics) OnFlowStart(ctx context.Context, flow Flow) {
	m.flowsStarted.Add(1)
}

func (m *BasicMetrics) OnTransition(ctx context.Context, flow Flow, from, to, event string) {
	m.transitions.Add(1)
}

func (m *BasicMetrics) OnInvalidEvent(ctx context.Context, flow Flow, state, event string) {
	m.invalidEvents.Add(1)
}

func (m *BasicMetrics) OnFlowFinal(ctx context.Context, flow Flow) {
	m.flowsFinished.Add(1)
}

func (m *BasicMetrics) OnSweep(ctx context.Context, ticket string) {
	m.swept.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.flowsStarted.Load()
	finished := m.flowsFinished.Load()
	swept := m.swept.Load()

	active := started - finished - swept
	if active < 0 {
		active = 0
	}

	return BasicMetricsSnapshot{
		FlowsStarted:  started,
		FlowsFinished: finished,
		ActiveFlows:   active,
		Transitions:   m.transitions.Load(),
		InvalidEvents: m.invalidEvents.Load(),
		Swept:         swept,
	}
}
