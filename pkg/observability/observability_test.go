package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/petrijr/pageflow/internal/engine"
	"github.com/petrijr/pageflow/internal/testutil"
	"github.com/petrijr/pageflow/pkg/api"
)

func survey() api.FlowDefinition {
	return api.FlowDefinition{
		Name:       "Survey",
		FirstState: "Ask",
		LastState:  &api.LastState{Name: "Thanks", View: "thanks"},
		States: map[string]api.StateSpec{
			"Ask": {
				View:        "question",
				Transitions: []api.TransitionSpec{{Event: "answer", NextState: "Thanks"}},
			},
		},
	}
}

// runSurvey starts two surveys, finishes one with a stray event first, and
// lets the other expire.
func runSurvey(t *testing.T, ctx context.Context, obs api.Observer) {
	t.Helper()
	clock := testutil.NewManualClock()
	eng := engine.NewEngineWithConfig(engine.Config{Expiration: time.Minute, Observer: obs, Clock: clock})
	require.NoError(t, eng.RegisterFlow(survey()))

	done, err := eng.Start(ctx, "Survey", nil)
	require.NoError(t, err)
	_, err = eng.Start(ctx, "Survey", nil)
	require.NoError(t, err)

	_, err = eng.TriggerEvent(ctx, done, "skip")
	require.NoError(t, err)
	_, err = eng.TriggerEvent(ctx, done, "answer")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = eng.Collect(ctx)
	require.NoError(t, err)
}

func TestPrometheusObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewPrometheusObserver(reg)

	runSurvey(t, context.Background(), obs)

	assert.Equal(t, 2.0, promtest.ToFloat64(obs.FlowsStarted.WithLabelValues("Survey")))
	assert.Equal(t, 1.0, promtest.ToFloat64(obs.FlowsFinished.WithLabelValues("Survey")))
	assert.Equal(t, 1.0, promtest.ToFloat64(obs.Transitions.WithLabelValues("Survey", "Thanks")))
	assert.Equal(t, 1.0, promtest.ToFloat64(obs.Transitions.WithLabelValues("Survey", api.StateFinal)))
	assert.Equal(t, 1.0, promtest.ToFloat64(obs.InvalidEvents.WithLabelValues("Survey", "Ask")))
	assert.Equal(t, 2.0, promtest.ToFloat64(obs.Swept))

	n, err := promtest.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestTracingObserver_AddsEventsToRequestSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "request")
	runSurvey(t, ctx, NewTracingObserver(tp))
	span.End()

	ended := sr.Ended()
	require.Len(t, ended, 1)

	var names []string
	for _, ev := range ended[0].Events() {
		names = append(names, ev.Name)
	}
	assert.Equal(t, []string{
		"pageflow.start",
		"pageflow.start",
		"pageflow.invalid_event",
		"pageflow.transition",
		"pageflow.transition",
		"pageflow.final",
		"pageflow.sweep",
		"pageflow.sweep",
	}, names)

	inv := ended[0].Events()[2]
	assert.Contains(t, inv.Attributes, attribute.String("pageflow.event", "skip"))
	assert.Contains(t, inv.Attributes, attribute.String("pageflow.state", "Ask"))
}

func TestTracingObserver_WithoutSpanEmitsOwnSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	NewTracingObserver(tp).OnSweep(context.Background(), "T1")

	ended := sr.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "pageflow.sweep", ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), attribute.String("pageflow.ticket", "T1"))
}
