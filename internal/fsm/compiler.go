package fsm

import (
	"sort"

	"github.com/petrijr/pageflow/pkg/api"
)

// Program is a compiled flow definition. It is immutable and may be shared by
// any number of machines.
type Program struct {
	name  string
	first string
	last  string

	states map[string]*state
	// known holds every event some transition of the program accepts.
	known map[string]struct{}
}

type state struct {
	id       string
	kind     api.StateKind
	view     string
	entry    *api.ActionRef
	exit     *api.ActionRef
	activity *api.ActionRef

	transitions map[string]*transition
}

type transition struct {
	event  string
	target string
	action *api.ActionRef
	guard  *api.ActionRef
}

// Edge is one transition of a compiled program.
type Edge struct {
	From  string
	Event string
	To    string
}

// Compile validates def and turns it into a Program.
//
// Reserved names are rejected with api.ErrProtectedState/api.ErrProtectedEvent,
// dangling transition targets with api.ErrUnknownTargetState. When a last
// state is set, the transition lastState --END--> FINAL is added.
func Compile(def api.FlowDefinition) (*Program, error) {
	fail := func(subject string, err error) error {
		return &api.DefinitionError{Flow: def.Name, Subject: subject, Err: err}
	}

	if def.Name == "" {
		return nil, fail("name", api.ErrInvalidDefinition)
	}
	if def.FirstState == "" {
		return nil, fail("first_state", api.ErrInvalidDefinition)
	}
	if api.IsProtectedState(def.FirstState) {
		return nil, fail(def.FirstState, api.ErrProtectedState)
	}
	if def.LastState != nil {
		if def.LastState.Name == "" {
			return nil, fail("last_state", api.ErrInvalidDefinition)
		}
		if api.IsProtectedState(def.LastState.Name) {
			return nil, fail(def.LastState.Name, api.ErrProtectedState)
		}
	}

	p := &Program{
		name:   def.Name,
		first:  def.FirstState,
		states: make(map[string]*state, len(def.States)+3),
		known:  make(map[string]struct{}),
	}
	defaultClass := def.Name + "Action"

	ids := make([]string, 0, len(def.States))
	for id := range def.States {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if id == "" {
			return nil, fail("state id", api.ErrInvalidDefinition)
		}
		if api.IsProtectedState(id) {
			return nil, fail(id, api.ErrProtectedState)
		}
		spec := def.States[id]

		kind := spec.Kind
		if kind == "" {
			kind = api.StateAction
			if spec.View != "" {
				kind = api.StateView
			}
		}
		switch kind {
		case api.StateView:
			if spec.View == "" {
				return nil, fail(id+": view state without view", api.ErrInvalidDefinition)
			}
		case api.StateAction:
		default:
			return nil, fail(id+": kind "+string(kind), api.ErrInvalidDefinition)
		}

		st := &state{
			id:          id,
			kind:        kind,
			view:        spec.View,
			entry:       normalize(spec.Entry, defaultClass),
			exit:        normalize(spec.Exit, defaultClass),
			activity:    normalize(spec.Activity, defaultClass),
			transitions: make(map[string]*transition, len(spec.Transitions)),
		}
		if kind == api.StateAction {
			st.view = ""
		}

		for _, ts := range spec.Transitions {
			if ts.Event == "" {
				return nil, fail(id+": transition without event", api.ErrInvalidDefinition)
			}
			if api.IsProtectedEvent(ts.Event) {
				return nil, fail(ts.Event, api.ErrProtectedEvent)
			}
			if _, dup := st.transitions[ts.Event]; dup {
				return nil, fail(id+": duplicate event "+ts.Event, api.ErrInvalidDefinition)
			}
			st.transitions[ts.Event] = &transition{
				event:  ts.Event,
				target: ts.NextState,
				action: normalize(ts.Action, defaultClass),
				guard:  normalize(ts.Guard, defaultClass),
			}
			p.known[ts.Event] = struct{}{}
		}
		p.states[id] = st
	}

	if ls := def.LastState; ls != nil {
		p.last = ls.Name
		st, ok := p.states[ls.Name]
		if !ok {
			st = &state{id: ls.Name, kind: api.StateAction, transitions: map[string]*transition{}}
			p.states[ls.Name] = st
		}
		if ls.View != "" {
			st.kind = api.StateView
			st.view = ls.View
		}
		st.transitions[api.EventEnd] = &transition{event: api.EventEnd, target: api.StateFinal}
		p.known[api.EventEnd] = struct{}{}
	}

	p.states[api.StateInitial] = &state{
		id:          api.StateInitial,
		kind:        api.StateAction,
		exit:        normalize(def.Initial, defaultClass),
		transitions: map[string]*transition{},
	}
	p.states[api.StateFinal] = &state{
		id:          api.StateFinal,
		kind:        api.StateAction,
		entry:       normalize(def.Final, defaultClass),
		transitions: map[string]*transition{},
	}

	if _, ok := p.states[p.first]; !ok {
		return nil, fail(p.first, api.ErrUnknownTargetState)
	}
	for _, id := range ids {
		st := p.states[id]
		events := sortedEvents(st)
		for _, ev := range events {
			tr := st.transitions[ev]
			if tr.target == api.StateInitial {
				return nil, fail(id+" --"+ev+"--> "+tr.target, api.ErrProtectedState)
			}
			if _, ok := p.states[tr.target]; !ok {
				return nil, fail(id+" --"+ev+"--> "+tr.target, api.ErrUnknownTargetState)
			}
		}
	}

	return p, nil
}

func normalize(ref *api.ActionRef, defaultClass string) *api.ActionRef {
	if ref == nil || ref.Method == "" {
		return nil
	}
	out := *ref
	if out.Class == "" {
		out.Class = defaultClass
	}
	return &out
}

func sortedEvents(st *state) []string {
	events := make([]string, 0, len(st.transitions))
	for ev := range st.transitions {
		events = append(events, ev)
	}
	sort.Strings(events)
	return events
}

// Name returns the flow name.
func (p *Program) Name() string { return p.name }

// FirstState returns the state entered on start.
func (p *Program) FirstState() string { return p.first }

// LastState returns the state whose entry finishes the flow, or "".
func (p *Program) LastState() string { return p.last }

// Knows reports whether any transition of the program accepts event.
func (p *Program) Knows(event string) bool {
	_, ok := p.known[event]
	return ok
}

// Topology returns every transition of the program sorted by source state
// and event. Two programs compiled from equal definitions have equal
// topologies.
func (p *Program) Topology() []Edge {
	var edges []Edge
	for _, st := range p.states {
		for _, tr := range st.transitions {
			edges = append(edges, Edge{From: st.id, Event: tr.event, To: tr.target})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].Event < edges[j].Event
	})
	return edges
}

// View returns the view bound to state id, or "" for action states.
func (p *Program) View(id string) string {
	if st, ok := p.states[id]; ok {
		return st.view
	}
	return ""
}
