package api

import "context"

// Next is the optional follow-up event produced by a transition action or an
// activity. The zero value means "no next event".
type Next struct {
	event string
}

// NoEvent is the Next value for actions that do not trigger a follow-up.
var NoEvent = Next{}

// Emit returns a Next that asks the flow to trigger event once the current
// step completes. An empty name is equivalent to NoEvent.
func Emit(event string) Next {
	return Next{event: event}
}

// Event returns the follow-up event name and whether one was requested.
func (n Next) Event() (string, bool) {
	return n.event, n.event != ""
}

// Flow is the view of a running flow execution handed to actions and
// observers.
type Flow interface {
	// ID returns the continuation ticket of the execution.
	ID() string
	// Name returns the name of the flow definition.
	Name() string

	CurrentState() string
	PreviousState() string
	IsFinal() bool
	// LastEventValid reports whether the most recent TriggerEvent call named
	// an event the state accepted.
	LastEventValid() bool

	View() (string, error)

	SetAttribute(key string, value any) error
	Attribute(key string) (any, error)
	HasAttribute(key string) (bool, error)
	RemoveAttribute(key string) error
	ClearAttributes() error

	Payload() any
}

// Execution is a flow instance as seen by its owner.
type Execution interface {
	Flow

	Start(ctx context.Context) error
	TriggerEvent(ctx context.Context, event string) error

	SetPayload(payload any)
	ClearPayload()

	History() []TransitionRecord
}

// ActionContext is passed to every invoked action method.
type ActionContext struct {
	Flow    Flow
	Payload any
	// Event is the event being dispatched; empty while the flow starts.
	Event string
}

// Optional lifecycle hooks. The invoker calls whichever of them an action
// object implements, in the order SetFlow, SetPayload, SetEvent, Prepare,
// before the target method.
type (
	FlowAware interface {
		SetFlow(flow Flow)
	}

	PayloadAware interface {
		SetPayload(payload any)
	}

	EventAware interface {
		SetEvent(event string)
	}

	Preparable interface {
		Prepare(ctx context.Context) error
	}
)
