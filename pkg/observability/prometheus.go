// Package observability provides api.Observer implementations that export
// flow activity to Prometheus and OpenTelemetry.
package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/petrijr/pageflow/pkg/api"
)

// PrometheusObserver counts flow lifecycle events.
type PrometheusObserver struct {
	FlowsStarted  *prometheus.CounterVec
	FlowsFinished *prometheus.CounterVec
	Transitions   *prometheus.CounterVec
	InvalidEvents *prometheus.CounterVec
	Swept         prometheus.Counter
}

var _ api.Observer = (*PrometheusObserver)(nil)

// NewPrometheusObserver registers the pageflow metrics with registerer. A
// nil registerer means prometheus.DefaultRegisterer.
func NewPrometheusObserver(registerer prometheus.Registerer) *PrometheusObserver {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusObserver{
		FlowsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pageflow_flows_started_total",
				Help: "Total number of flow executions started",
			},
			[]string{"flow"},
		),
		FlowsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pageflow_flows_finished_total",
				Help: "Total number of flow executions that reached FINAL",
			},
			[]string{"flow"},
		),
		Transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pageflow_transitions_total",
				Help: "Total number of state transitions",
			},
			[]string{"flow", "to"},
		),
		InvalidEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pageflow_invalid_events_total",
				Help: "Total number of events rejected by the current state",
			},
			[]string{"flow", "state"},
		),
		Swept: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pageflow_continuations_swept_total",
				Help: "Total number of continuations removed by the garbage collector",
			},
		),
	}
}

func (o *PrometheusObserver) OnFlowStart(ctx context.Context, flow api.Flow) {
	o.FlowsStarted.WithLabelValues(flow.Name()).Inc()
}

func (o *PrometheusObserver) OnTransition(ctx context.Context, flow api.Flow, from, to, event string) {
	o.Transitions.WithLabelValues(flow.Name(), to).Inc()
}

func (o *PrometheusObserver) OnInvalidEvent(ctx context.Context, flow api.Flow, state, event string) {
	o.InvalidEvents.WithLabelValues(flow.Name(), state).Inc()
}

func (o *PrometheusObserver) OnFlowFinal(ctx context.Context, flow api.Flow) {
	o.FlowsFinished.WithLabelValues(flow.Name()).Inc()
}

func (o *PrometheusObserver) OnSweep(ctx context.Context, ticket string) {
	o.Swept.Inc()
}
