package pageflow

import (
	"fmt"

	"github.com/petrijr/pageflow/pkg/api"
	"github.com/petrijr/pageflow/pkg/definition"
)

// FlowBuilder provides a fluent API for defining page flows in code:
//
//	flow := pageflow.New("Registration").
//	    ViewState("input", "register.html").
//	        On("submit", "check", pageflow.WithAction("validate")).
//	    ActionState("check").
//	        Activity("checkUser").
//	        On("ok", "done").
//	        On("taken", "input").
//	    First("input").
//	    Last("done", "welcome.html")
//
//	if err := flow.Register(engine); err != nil {
//	    log.Fatal(err)
//	}
//
// Entry, Exit, Activity and On apply to the state most recently declared
// with ViewState or ActionState. Action references are written as "method"
// or "Class::method".
type FlowBuilder struct {
	def     api.FlowDefinition
	order   []string
	current string
}

// TransitionOption configures a transition declared with On.
type TransitionOption func(*api.TransitionSpec)

// WithAction runs ref while the transition fires, between the source
// state's exit and the target state's entry.
func WithAction(ref string) TransitionOption {
	r := mustRef(ref)
	return func(t *api.TransitionSpec) { t.Action = &r }
}

// WithGuard makes the transition conditional on ref returning true.
func WithGuard(ref string) TransitionOption {
	r := mustRef(ref)
	return func(t *api.TransitionSpec) { t.Guard = &r }
}

// New creates a new flow builder with the given name.
func New(name string) *FlowBuilder {
	return &FlowBuilder{
		def: api.FlowDefinition{
			Name:   name,
			States: make(map[string]api.StateSpec),
		},
	}
}

// Name returns the flow name.
func (b *FlowBuilder) Name() string {
	return b.def.Name
}

// Definition returns a copy of the underlying FlowDefinition.
func (b *FlowBuilder) Definition() FlowDefinition {
	def := b.def
	def.States = make(map[string]api.StateSpec, len(b.def.States))
	for id, s := range b.def.States {
		s.Transitions = append([]api.TransitionSpec(nil), s.Transitions...)
		def.States[id] = s
	}
	if b.def.LastState != nil {
		ls := *b.def.LastState
		def.LastState = &ls
	}
	return def
}

// States returns the declared state ids in declaration order.
func (b *FlowBuilder) States() []string {
	return append([]string(nil), b.order...)
}

// ViewState declares a state that renders view. The first state declared
// becomes the first state of the flow unless First says otherwise.
func (b *FlowBuilder) ViewState(id, view string) *FlowBuilder {
	if view == "" {
		panic(fmt.Sprintf("pageflow: view state %q has no view", id))
	}
	return b.declare(id, api.StateSpec{Kind: api.StateView, View: view})
}

// ActionState declares a control state without a view.
func (b *FlowBuilder) ActionState(id string) *FlowBuilder {
	return b.declare(id, api.StateSpec{Kind: api.StateAction})
}

func (b *FlowBuilder) declare(id string, spec api.StateSpec) *FlowBuilder {
	if id == "" {
		panic("pageflow: state id must not be empty")
	}
	if _, dup := b.def.States[id]; dup {
		panic(fmt.Sprintf("pageflow: state %q declared twice", id))
	}
	b.def.States[id] = spec
	b.order = append(b.order, id)
	b.current = id
	if b.def.FirstState == "" {
		b.def.FirstState = id
	}
	return b
}

// Entry sets the action run when the current state is entered.
func (b *FlowBuilder) Entry(ref string) *FlowBuilder {
	return b.update("Entry", func(s *api.StateSpec) {
		r := mustRef(ref)
		s.Entry = &r
	})
}

// Exit sets the action run when the current state is left.
func (b *FlowBuilder) Exit(ref string) *FlowBuilder {
	return b.update("Exit", func(s *api.StateSpec) {
		r := mustRef(ref)
		s.Exit = &r
	})
}

// Activity sets the action run after the current state is entered. Its
// result may name a follow-up event.
func (b *FlowBuilder) Activity(ref string) *FlowBuilder {
	return b.update("Activity", func(s *api.StateSpec) {
		r := mustRef(ref)
		s.Activity = &r
	})
}

// On adds a transition from the current state to next on event.
func (b *FlowBuilder) On(event, next string, opts ...TransitionOption) *FlowBuilder {
	if event == "" {
		panic("pageflow: event name must not be empty")
	}
	return b.update("On", func(s *api.StateSpec) {
		t := api.TransitionSpec{Event: event, NextState: next}
		for _, opt := range opts {
			opt(&t)
		}
		s.Transitions = append(s.Transitions, t)
	})
}

func (b *FlowBuilder) update(op string, fn func(*api.StateSpec)) *FlowBuilder {
	if b.current == "" {
		panic(fmt.Sprintf("pageflow: %s called before any state was declared", op))
	}
	s := b.def.States[b.current]
	fn(&s)
	b.def.States[b.current] = s
	return b
}

// First overrides the first state.
func (b *FlowBuilder) First(id string) *FlowBuilder {
	b.def.FirstState = id
	return b
}

// Last names the state whose entry finishes the flow and the view shown
// once it has finished. The state is synthesized when it was not declared.
func (b *FlowBuilder) Last(id, view string) *FlowBuilder {
	b.def.LastState = &api.LastState{Name: id, View: view}
	return b
}

// Initial sets the action run when the flow starts.
func (b *FlowBuilder) Initial(ref string) *FlowBuilder {
	r := mustRef(ref)
	b.def.Initial = &r
	return b
}

// Final sets the action run when the flow reaches FINAL.
func (b *FlowBuilder) Final(ref string) *FlowBuilder {
	r := mustRef(ref)
	b.def.Final = &r
	return b
}

// Register compiles the flow and registers it in r.
func (b *FlowBuilder) Register(r Registry) error {
	if r == nil {
		return fmt.Errorf("pageflow: nil registry")
	}
	return r.RegisterFlow(b.Definition())
}

// MustRegister is like Register but panics on error.
func (b *FlowBuilder) MustRegister(r Registry) {
	if err := b.Register(r); err != nil {
		panic(err)
	}
}

func mustRef(s string) api.ActionRef {
	ref, err := definition.ParseActionRef(s)
	if err != nil {
		panic(fmt.Sprintf("pageflow: %v", err))
	}
	return ref
}
