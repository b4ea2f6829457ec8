package api

import (
	"context"
	"log/slog"
	"sync"
	"testing"
)

//
// Helpers
//

// stubFlow is a fixed Flow used to feed observers.
type stubFlow struct {
	id, name, state string
}

func (f *stubFlow) ID() string                              { return f.id }
func (f *stubFlow) Name() string                            { return f.name }
func (f *stubFlow) CurrentState() string                    { return f.state }
func (f *stubFlow) PreviousState() string                   { return "" }
func (f *stubFlow) IsFinal() bool                           { return false }
func (f *stubFlow) LastEventValid() bool                    { return true }
func (f *stubFlow) View() (string, error)                   { return "form", nil }
func (f *stubFlow) SetAttribute(key string, value any) error { return nil }
func (f *stubFlow) Attribute(key string) (any, error)       { return nil, nil }
func (f *stubFlow) HasAttribute(key string) (bool, error)   { return false, nil }
func (f *stubFlow) RemoveAttribute(key string) error        { return nil }
func (f *stubFlow) ClearAttributes() error                  { return nil }
func (f *stubFlow) Payload() any                            { return nil }

func newTestFlow() *stubFlow {
	return &stubFlow{id: "ticket-123", name: "registration", state: "Input"}
}

// testObserver counts calls, used to verify fan-out behavior.
type testObserver struct {
	mu sync.Mutex

	starts, transitions, invalid, finals, sweeps int

	lastTransition struct {
		From, To, Event string
	}
	lastSwept string
}

func (o *testObserver) OnFlowStart(ctx context.Context, flow Flow) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts++
}

func (o *testObserver) OnTransition(ctx context.Context, flow Flow, from, to, event string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions++
	o.lastTransition.From, o.lastTransition.To, o.lastTransition.Event = from, to, event
}

func (o *testObserver) OnInvalidEvent(ctx context.Context, flow Flow, state, event string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.invalid++
}

func (o *testObserver) OnFlowFinal(ctx context.Context, flow Flow) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finals++
}

func (o *testObserver) OnSweep(ctx context.Context, ticket string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sweeps++
	o.lastSwept = ticket
}

// recordingHandler is a minimal slog.Handler that just records log records.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *recordingHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(name string) slog.Handler       { return h }

func attrsToMap(r slog.Record) map[string]any {
	m := make(map[string]any)
	r.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value.Any()
		return true
	})
	return m
}

//
// NoopObserver
//

func TestNoopObserver_DoesNotPanic(t *testing.T) {
	ctx := context.Background()
	flow := newTestFlow()
	var o Observer = NoopObserver{}

	o.OnFlowStart(ctx, flow)
	o.OnTransition(ctx, flow, "Input", "Validate", "submit")
	o.OnInvalidEvent(ctx, flow, "Input", "bogus")
	o.OnFlowFinal(ctx, flow)
	o.OnSweep(ctx, flow.ID())
}

//
// CompositeObserver
//

func TestNewCompositeObserver_EmptyReturnsNoop(t *testing.T) {
	o := NewCompositeObserver()
	if _, ok := o.(NoopObserver); !ok {
		t.Fatalf("expected NewCompositeObserver() to return NoopObserver, got %T", o)
	}
}

func TestNewCompositeObserver_SingleReturnsThatObserver(t *testing.T) {
	single := &testObserver{}
	o := NewCompositeObserver(single, nil)

	if got, ok := o.(*testObserver); !ok || got != single {
		t.Fatalf("expected the single non-nil observer to be returned, got %T (%p)", o, o)
	}
}

func TestCompositeObserver_ForwardsAllEvents(t *testing.T) {
	ctx := context.Background()
	flow := newTestFlow()

	o1 := &testObserver{}
	o2 := &testObserver{}
	co, ok := NewCompositeObserver(o1, o2).(*CompositeObserver)
	if !ok {
		t.Fatalf("expected *CompositeObserver")
	}

	co.OnFlowStart(ctx, flow)
	co.OnTransition(ctx, flow, "Input", "Validate", "submit")
	co.OnInvalidEvent(ctx, flow, "Input", "bogus")
	co.OnFlowFinal(ctx, flow)
	co.OnSweep(ctx, "T1")

	for i, o := range []*testObserver{o1, o2} {
		if o.starts != 1 || o.transitions != 1 || o.invalid != 1 || o.finals != 1 || o.sweeps != 1 {
			t.Fatalf("observer %d did not receive all calls: %+v", i+1, o)
		}
		if o.lastTransition.From != "Input" || o.lastTransition.To != "Validate" || o.lastTransition.Event != "submit" {
			t.Fatalf("observer %d transition mismatch: %+v", i+1, o.lastTransition)
		}
		if o.lastSwept != "T1" {
			t.Fatalf("observer %d swept ticket mismatch: %q", i+1, o.lastSwept)
		}
	}
}

//
// LoggingObserver
//

func TestNewLoggingObserver_NilLoggerUsesDefault(t *testing.T) {
	o := NewLoggingObserver(nil)
	lo, ok := o.(*LoggingObserver)
	if !ok {
		t.Fatalf("expected *LoggingObserver, got %T", o)
	}
	if lo.Logger == nil {
		t.Fatalf("expected non-nil Logger when created with nil")
	}
}

func TestLoggingObserver_OnFlowStart_EmitsInfoLog(t *testing.T) {
	ctx := context.Background()
	flow := newTestFlow()

	h := &recordingHandler{}
	o := NewLoggingObserver(slog.New(h))

	o.OnFlowStart(ctx, flow)

	if len(h.records) != 1 {
		t.Fatalf("expected 1 log record, got %d", len(h.records))
	}

	rec := h.records[0]
	if rec.Level != slog.LevelInfo {
		t.Fatalf("expected LevelInfo, got %v", rec.Level)
	}
	if rec.Message != "flow_start" {
		t.Fatalf("expected message flow_start, got %q", rec.Message)
	}

	attrs := attrsToMap(rec)
	if attrs["flow"] != flow.name {
		t.Fatalf("expected flow=%q, got %v", flow.name, attrs["flow"])
	}
	if attrs["ticket"] != flow.id {
		t.Fatalf("expected ticket=%q, got %v", flow.id, attrs["ticket"])
	}
}

func TestLoggingObserver_InvalidEventIsWarning(t *testing.T) {
	h := &recordingHandler{}
	o := NewLoggingObserver(slog.New(h))

	o.OnInvalidEvent(context.Background(), newTestFlow(), "Input", "bogus")

	if len(h.records) != 1 {
		t.Fatalf("expected 1 log record, got %d", len(h.records))
	}
	rec := h.records[0]
	if rec.Level != slog.LevelWarn {
		t.Fatalf("expected LevelWarn, got %v", rec.Level)
	}
	if attrs := attrsToMap(rec); attrs["event"] != "bogus" || attrs["state"] != "Input" {
		t.Fatalf("unexpected attrs: %v", attrs)
	}
}

//
// BasicMetrics
//

func TestBasicMetrics_CountersAndSnapshot(t *testing.T) {
	var m BasicMetrics

	ctx := context.Background()
	flow := newTestFlow()

	// 3 started, 1 finished, 1 swept -> active = 1
	m.OnFlowStart(ctx, flow)
	m.OnFlowStart(ctx, flow)
	m.OnFlowStart(ctx, flow)
	m.OnFlowFinal(ctx, flow)
	m.OnSweep(ctx, "T1")
	m.OnTransition(ctx, flow, "a", "b", "go")
	m.OnTransition(ctx, flow, "b", "c", "go")
	m.OnInvalidEvent(ctx, flow, "c", "bogus")

	snap := m.Snapshot()

	if snap.FlowsStarted != 3 {
		t.Fatalf("FlowsStarted=%d, want 3", snap.FlowsStarted)
	}
	if snap.FlowsFinished != 1 {
		t.Fatalf("FlowsFinished=%d, want 1", snap.FlowsFinished)
	}
	if snap.ActiveFlows != 1 {
		t.Fatalf("ActiveFlows=%d, want 1", snap.ActiveFlows)
	}
	if snap.Transitions != 2 || snap.InvalidEvents != 1 || snap.Swept != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestBasicMetrics_ActiveNeverNegative(t *testing.T) {
	var m BasicMetrics
	ctx := context.Background()
	flow := newTestFlow()

	m.OnFlowStart(ctx, flow)
	m.OnFlowFinal(ctx, flow)
	m.OnSweep(ctx, flow.ID())

	if got := m.Snapshot().ActiveFlows; got != 0 {
		t.Fatalf("ActiveFlows=%d, want 0", got)
	}
}
