// Package flow binds a compiled state machine to the data of one running
// flow: its ticket, attributes, payload, action scope and history.
package flow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/petrijr/pageflow/internal/fsm"
	"github.com/petrijr/pageflow/internal/invoker"
	"github.com/petrijr/pageflow/pkg/api"
)

// ActionInvoker runs action methods within a scope.
type ActionInvoker interface {
	Invoke(ctx context.Context, scope *invoker.Scope, ref api.ActionRef, actx *api.ActionContext) (any, error)
}

// Execution is one running flow.
//
// Start and TriggerEvent are serialized. Getters and the attribute store
// may be used concurrently and from inside actions.
type Execution struct {
	id       string
	machine  *fsm.Machine
	invoker  ActionInvoker
	scope    *invoker.Scope
	observer api.Observer
	clock    api.Clock

	dispatchMu sync.Mutex

	mu      sync.RWMutex
	attrs   map[string]any
	payload any
	history []api.TransitionRecord
}

var _ api.Execution = (*Execution)(nil)

type config struct {
	observer api.Observer
	clock    api.Clock
	logger   *slog.Logger
	maxDepth int
}

// Option configures an Execution.
type Option func(*config)

func WithObserver(o api.Observer) Option {
	return func(c *config) { c.observer = o }
}

func WithClock(clock api.Clock) Option {
	return func(c *config) { c.clock = clock }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithMaxDepth bounds follow-up event cascades.
func WithMaxDepth(depth int) Option {
	return func(c *config) { c.maxDepth = depth }
}

// New creates an unstarted execution of prog identified by id.
func New(id string, prog *fsm.Program, inv ActionInvoker, opts ...Option) *Execution {
	cfg := config{
		observer: api.NoopObserver{},
		clock:    api.SystemClock{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.observer == nil {
		cfg.observer = api.NoopObserver{}
	}

	e := &Execution{
		id:       id,
		invoker:  inv,
		scope:    invoker.NewScope(),
		observer: cfg.observer,
		clock:    cfg.clock,
		attrs:    make(map[string]any),
	}
	h := hooks{e}
	e.machine = prog.NewMachine(h,
		fsm.WithListener(h),
		fsm.WithLogger(cfg.logger.With(slog.String("ticket", id))),
		fsm.WithMaxDepth(cfg.maxDepth),
	)
	return e
}

func (e *Execution) ID() string            { return e.id }
func (e *Execution) Name() string          { return e.machine.Program().Name() }
func (e *Execution) CurrentState() string  { return e.machine.CurrentState() }
func (e *Execution) PreviousState() string { return e.machine.PreviousState() }
func (e *Execution) IsFinal() bool         { return e.machine.IsFinal() }
func (e *Execution) LastEventValid() bool  { return e.machine.LastEventValid() }

func (e *Execution) View() (string, error) { return e.machine.View() }

// Start enters the first state of the flow.
func (e *Execution) Start(ctx context.Context) error {
	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()
	return e.machine.Start(ctx)
}

// TriggerEvent dispatches event and every follow-up it causes.
func (e *Execution) TriggerEvent(ctx context.Context, event string) error {
	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()
	return e.machine.TriggerEvent(ctx, event)
}

func (e *Execution) started(op string) error {
	if !e.machine.Started() {
		return &api.UsageError{Op: op, Err: api.ErrNotStarted}
	}
	return nil
}

func (e *Execution) SetAttribute(key string, value any) error {
	if err := e.started("set_attribute"); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attrs[key] = value
	return nil
}

func (e *Execution) Attribute(key string) (any, error) {
	if err := e.started("attribute"); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.attrs[key], nil
}

func (e *Execution) HasAttribute(key string) (bool, error) {
	if err := e.started("has_attribute"); err != nil {
		return false, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.attrs[key]
	return ok, nil
}

func (e *Execution) RemoveAttribute(key string) error {
	if err := e.started("remove_attribute"); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.attrs, key)
	return nil
}

func (e *Execution) ClearAttributes() error {
	if err := e.started("clear_attributes"); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	clear(e.attrs)
	return nil
}

func (e *Execution) Payload() any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.payload
}

func (e *Execution) SetPayload(payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.payload = payload
}

func (e *Execution) ClearPayload() {
	e.SetPayload(nil)
}

// History returns a copy of the transitions taken so far.
func (e *Execution) History() []api.TransitionRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]api.TransitionRecord(nil), e.history...)
}

// Release drops the action instances held by the execution.
func (e *Execution) Release() {
	e.scope.Clear()
}

// hooks connects the machine to the execution without exporting the
// callbacks on Execution itself.
type hooks struct {
	e *Execution
}

func (h hooks) Invoke(ctx context.Context, ref api.ActionRef, event string) (any, error) {
	actx := &api.ActionContext{
		Flow:    h.e,
		Payload: h.e.Payload(),
		Event:   event,
	}
	return h.e.invoker.Invoke(ctx, h.e.scope, ref, actx)
}

func (h hooks) Entered(ctx context.Context, from, to, event string) {
	e := h.e
	if from == "" {
		e.observer.OnFlowStart(ctx, e)
		return
	}

	e.mu.Lock()
	e.history = append(e.history, api.TransitionRecord{From: from, To: to, Event: event, At: e.clock.Now()})
	e.mu.Unlock()

	e.observer.OnTransition(ctx, e, from, to, event)
	if to == api.StateFinal {
		e.observer.OnFlowFinal(ctx, e)
	}
}

func (h hooks) Rejected(ctx context.Context, state, event string) {
	h.e.observer.OnInvalidEvent(ctx, h.e, state, event)
}
