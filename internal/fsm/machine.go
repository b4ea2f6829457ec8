package fsm

import (
	"context"
	"log/slog"
	"sync"

	"github.com/petrijr/pageflow/pkg/api"
)

// DefaultMaxDepth bounds how deeply follow-up events may cascade.
const DefaultMaxDepth = 64

// Invoker runs the action behind ref while event is being dispatched.
//
// The result is interpreted by the kind of hook: an api.Next from a
// transition action or activity is queued as the next event, a bool from a
// guard decides whether the transition proceeds. Anything else is ignored.
type Invoker interface {
	Invoke(ctx context.Context, ref api.ActionRef, event string) (any, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, ref api.ActionRef, event string) (any, error)

func (f InvokerFunc) Invoke(ctx context.Context, ref api.ActionRef, event string) (any, error) {
	return f(ctx, ref, event)
}

// Listener is told about state changes and rejected events. Callbacks run
// inline with dispatch.
type Listener interface {
	// Entered is called after to's entry action and activity have run.
	// from is "" when the machine starts.
	Entered(ctx context.Context, from, to, event string)
	// Rejected is called when state did not accept event.
	Rejected(ctx context.Context, state, event string)
}

type status int

const (
	notStarted status = iota
	running
	final
)

// Machine is one running instance of a Program.
//
// Start and TriggerEvent must not be called concurrently; the owning
// execution serializes them. The state accessors are safe to call at any
// time, including from actions while an event is being dispatched.
type Machine struct {
	prog     *Program
	inv      Invoker
	listener Listener
	logger   *slog.Logger
	maxDepth int

	mu        sync.RWMutex
	status    status
	current   string
	previous  string
	lastValid bool
}

// MachineOption is a functional option for configuring a Machine.
type MachineOption func(*Machine)

// WithListener sets the listener notified about state changes.
func WithListener(l Listener) MachineOption {
	return func(m *Machine) {
		m.listener = l
	}
}

// WithLogger sets the logger for the machine.
func WithLogger(logger *slog.Logger) MachineOption {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(depth int) MachineOption {
	return func(m *Machine) {
		if depth > 0 {
			m.maxDepth = depth
		}
	}
}

// NewMachine creates a machine in the NotStarted state whose hooks call inv.
func (p *Program) NewMachine(inv Invoker, opts ...MachineOption) *Machine {
	m := &Machine{
		prog:     p,
		inv:      inv,
		logger:   slog.Default(),
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Program returns the program the machine runs.
func (m *Machine) Program() *Program { return m.prog }

func (m *Machine) CurrentState() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Machine) PreviousState() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.previous
}

func (m *Machine) Started() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status != notStarted
}

func (m *Machine) IsFinal() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status == final
}

// LastEventValid reports whether the event passed to the most recent
// TriggerEvent call was accepted by the state it was fired in.
func (m *Machine) LastEventValid() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastValid
}

// View returns the view of the current state. Once the machine is final it
// returns the view of the state visited just before FINAL.
func (m *Machine) View() (string, error) {
	m.mu.RLock()
	st, cur, prev := m.status, m.current, m.previous
	m.mu.RUnlock()

	if st == notStarted {
		return "", &api.UsageError{Op: "view", Err: api.ErrNotStarted}
	}
	id := cur
	if st == final {
		id = prev
	}
	view := m.prog.View(id)
	if view == "" {
		return "", &api.UsageError{Op: "view", State: id, Err: api.ErrNoView}
	}
	return view, nil
}

// Start leaves INITIAL and enters the first state.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status != notStarted {
		m.mu.Unlock()
		return &api.UsageError{Op: "start", Err: api.ErrAlreadyStarted}
	}
	m.status = running
	m.lastValid = true
	m.mu.Unlock()

	initial := m.prog.states[api.StateInitial]
	if err := m.runSimple(ctx, initial.exit, ""); err != nil {
		return err
	}

	m.mu.Lock()
	m.current = m.prog.first
	m.mu.Unlock()

	return m.enter(ctx, "", "", 0)
}

// TriggerEvent dispatches name to the current state. An event the state
// does not accept is not an error: the machine stays where it is and
// LastEventValid reports false.
func (m *Machine) TriggerEvent(ctx context.Context, name string) error {
	m.mu.RLock()
	st, cur := m.status, m.current
	m.mu.RUnlock()

	switch st {
	case notStarted:
		return &api.UsageError{Op: "trigger_event", Err: api.ErrNotStarted}
	case final:
		return &api.UsageError{Op: "trigger_event", State: cur, Err: api.ErrAlreadyFinal}
	}

	accepted, err := m.dispatch(ctx, name, 0)

	m.mu.Lock()
	m.lastValid = accepted
	m.mu.Unlock()

	return err
}

func (m *Machine) dispatch(ctx context.Context, name string, depth int) (bool, error) {
	if depth > m.maxDepth {
		return false, &api.UsageError{Op: "trigger_event", State: m.CurrentState(), Err: api.ErrCascadeLimit}
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	from := m.CurrentState()
	src := m.prog.states[from]

	tr, ok := src.transitions[name]
	if name == api.EventReentry || !ok {
		return false, m.reenter(ctx, src, name, depth)
	}

	if tr.guard != nil {
		res, err := m.inv.Invoke(ctx, *tr.guard, name)
		if err != nil {
			return false, err
		}
		if allowed, isBool := res.(bool); isBool && !allowed {
			return false, m.reenter(ctx, src, name, depth)
		}
	}

	if err := m.runSimple(ctx, src.exit, name); err != nil {
		return false, err
	}

	var queue []string
	if tr.action != nil {
		next, err := m.runProducing(ctx, *tr.action, name)
		if err != nil {
			return false, err
		}
		if next != "" {
			queue = append(queue, next)
		}
	}

	m.mu.Lock()
	m.previous = from
	m.current = tr.target
	if tr.target == api.StateFinal {
		m.status = final
	}
	m.mu.Unlock()

	if err := m.enter(ctx, from, name, depth, queue...); err != nil {
		return true, err
	}
	return true, nil
}

// enter runs the entry action and activity of the current state, then fires
// END when the last state was reached and drains queued follow-ups.
func (m *Machine) enter(ctx context.Context, from, event string, depth int, queue ...string) error {
	to := m.CurrentState()
	st := m.prog.states[to]

	if err := m.runSimple(ctx, st.entry, event); err != nil {
		return err
	}
	if st.activity != nil {
		next, err := m.runProducing(ctx, *st.activity, event)
		if err != nil {
			return err
		}
		if next != "" {
			queue = append(queue, next)
		}
	}

	if m.listener != nil {
		m.listener.Entered(ctx, from, to, event)
	}

	if to == m.prog.last && to != "" {
		if _, err := m.dispatch(ctx, api.EventEnd, depth+1); err != nil {
			return err
		}
	}

	return m.drain(ctx, queue, depth)
}

// reenter handles an event the current state did not accept: the state's
// activity runs again and nothing moves.
func (m *Machine) reenter(ctx context.Context, st *state, event string, depth int) error {
	if m.listener != nil {
		m.listener.Rejected(ctx, st.id, event)
	}
	if st.activity == nil {
		return nil
	}
	next, err := m.runProducing(ctx, *st.activity, api.EventReentry)
	if err != nil {
		return err
	}
	if next == "" {
		return nil
	}
	return m.drain(ctx, []string{next}, depth)
}

func (m *Machine) drain(ctx context.Context, queue []string, depth int) error {
	for i, next := range queue {
		if m.IsFinal() {
			m.logger.DebugContext(ctx, "follow_up_discarded",
				slog.String("flow", m.prog.name),
				slog.Any("events", queue[i:]),
			)
			return nil
		}
		if _, err := m.dispatch(ctx, next, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) runSimple(ctx context.Context, ref *api.ActionRef, event string) error {
	if ref == nil {
		return nil
	}
	_, err := m.inv.Invoke(ctx, *ref, event)
	return err
}

// runProducing invokes ref and validates the follow-up event it returns.
func (m *Machine) runProducing(ctx context.Context, ref api.ActionRef, event string) (string, error) {
	res, err := m.inv.Invoke(ctx, ref, event)
	if err != nil {
		return "", err
	}
	n, ok := res.(api.Next)
	if !ok {
		return "", nil
	}
	next, ok := n.Event()
	if !ok {
		return "", nil
	}
	if !m.prog.Knows(next) {
		return "", &api.InvocationError{Class: ref.Class, Method: ref.Method, Event: next, Err: api.ErrInvalidEvent}
	}
	return next, nil
}
