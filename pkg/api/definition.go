package api

// Protected names. They may never appear as state ids or event names in a
// user-authored FlowDefinition.
const (
	StateInitial = "INITIAL"
	StateFinal   = "FINAL"
	EventEnd     = "END"

	// EventReentry is dispatched in place of an event the current state does
	// not accept. It re-runs the current state's activity and never changes
	// state.
	EventReentry = "__reentry__"
)

// StateKind distinguishes view-bearing states from pure control states.
type StateKind string

const (
	StateView   StateKind = "view"
	StateAction StateKind = "action"
)

// ActionRef names a method on an action class. Class may be empty, in which
// case "<FlowName>Action" is used.
type ActionRef struct {
	Class  string `json:"class,omitempty" yaml:"class,omitempty"`
	Method string `json:"method" yaml:"method"`
}

// String renders the reference as Class::Method.
func (r ActionRef) String() string {
	if r.Class == "" {
		return r.Method
	}
	return r.Class + "::" + r.Method
}

// TransitionSpec describes one outgoing transition of a state.
type TransitionSpec struct {
	Event     string     `json:"event" yaml:"event"`
	NextState string     `json:"next_state" yaml:"next_state"`
	Action    *ActionRef `json:"action,omitempty" yaml:"action,omitempty"`
	Guard     *ActionRef `json:"guard,omitempty" yaml:"guard,omitempty"`
}

// StateSpec describes a single state.
type StateSpec struct {
	Kind        StateKind        `json:"kind" yaml:"kind"`
	View        string           `json:"view,omitempty" yaml:"view,omitempty"`
	Entry       *ActionRef       `json:"entry,omitempty" yaml:"entry,omitempty"`
	Exit        *ActionRef       `json:"exit,omitempty" yaml:"exit,omitempty"`
	Activity    *ActionRef       `json:"activity,omitempty" yaml:"activity,omitempty"`
	Transitions []TransitionSpec `json:"transitions,omitempty" yaml:"transitions,omitempty"`
}

// LastState names the state whose entry finishes the flow, along with the
// view rendered once the flow is final.
type LastState struct {
	Name string `json:"name" yaml:"name"`
	View string `json:"view" yaml:"view"`
}

// FlowDefinition is the normalized description of a page flow. It is
// produced by a configuration reader (see pkg/definition) or by FlowBuilder
// and compiled into a state machine when the flow is registered.
type FlowDefinition struct {
	Name       string               `json:"name" yaml:"name"`
	FirstState string               `json:"first_state" yaml:"first_state"`
	LastState  *LastState           `json:"last_state,omitempty" yaml:"last_state,omitempty"`
	States     map[string]StateSpec `json:"states" yaml:"states"`

	// Initial runs when the flow leaves the INITIAL pseudo-state on start.
	Initial *ActionRef `json:"initial,omitempty" yaml:"initial,omitempty"`
	// Final runs when the flow enters FINAL.
	Final *ActionRef `json:"final,omitempty" yaml:"final,omitempty"`
}

// IsProtectedState reports whether id is reserved for the engine.
func IsProtectedState(id string) bool {
	switch id {
	case StateInitial, StateFinal, EventEnd:
		return true
	}
	return false
}

// IsProtectedEvent reports whether name is reserved for the engine.
func IsProtectedEvent(name string) bool {
	switch name {
	case EventEnd, EventReentry, StateInitial, StateFinal:
		return true
	}
	return false
}
