// Package api contains the core building blocks of the pageflow engine: flow
// definitions, the Flow and Execution views of a running flow, the typed
// follow-up event returned by actions, the error taxonomy and the Observer
// hooks.
//
// Most users interact with the higher-level pageflow package, which re-exports
// selected types and helpers from this package. The api package is intended
// for custom integrations such as alternative definition readers, observers or
// action dispatchers.
//
// # Flow Definitions
//
// A FlowDefinition describes a page flow: its name, its first and optional
// last state, and a map of states. View states carry a view identifier to be
// rendered; action states carry none and exist for control only. Every state
// may bind entry, exit and activity actions, and every transition may bind a
// transition action and a guard.
//
// The names INITIAL, FINAL and END are reserved for the engine. Reaching the
// last state automatically fires END, which moves the flow to FINAL.
//
// # Actions
//
// Actions are methods on action objects identified by class name. A
// transition action or an activity may return Emit(event) to trigger a
// follow-up event, which is fully processed before the triggering call
// returns. Action objects may implement FlowAware, PayloadAware, EventAware
// and Preparable to receive lifecycle callbacks before each invocation.
//
// # Observability
//
// The Observer interface receives flow lifecycle callbacks. LoggingObserver
// and BasicMetrics are ready-made implementations; NewCompositeObserver
// combines several. The pkg/observability package adds Prometheus and
// OpenTelemetry observers.
package api
