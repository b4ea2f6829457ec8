package invoker

import (
	"context"
	"errors"
	"fmt"

	"github.com/petrijr/pageflow/pkg/api"
)

// Invoker resolves action classes and calls their methods.
type Invoker struct {
	classes    *Classes
	loader     Loader
	dir        string
	dispatcher Dispatcher
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithLoader consults loader for classes that are not registered, looking
// below dir.
func WithLoader(loader Loader, dir string) Option {
	return func(i *Invoker) {
		i.loader = loader
		i.dir = dir
	}
}

// WithActionDirectory sets the directory passed to the loader.
func WithActionDirectory(dir string) Option {
	return func(i *Invoker) {
		i.dir = dir
	}
}

// WithDispatcher replaces the default ReflectDispatcher.
func WithDispatcher(d Dispatcher) Option {
	return func(i *Invoker) {
		if d != nil {
			i.dispatcher = d
		}
	}
}

// New creates an Invoker over classes. A nil classes means no registered
// classes.
func New(classes *Classes, opts ...Option) *Invoker {
	if classes == nil {
		classes = NewClasses()
	}
	i := &Invoker{
		classes:    classes,
		dispatcher: &ReflectDispatcher{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Invoke calls ref on the scope's instance of ref.Class.
//
// Before the method runs, the instance receives whichever of the
// api.FlowAware, api.PayloadAware, api.EventAware and api.Preparable hooks
// it implements, in that order. Every failure is an *api.InvocationError.
func (i *Invoker) Invoke(ctx context.Context, scope *Scope, ref api.ActionRef, actx *api.ActionContext) (any, error) {
	if actx == nil {
		actx = &api.ActionContext{}
	}

	obj, err := scope.instance(ref.Class, func() (any, error) {
		return i.create(ref.Class)
	})
	if err != nil {
		return nil, &api.InvocationError{Class: ref.Class, Err: err}
	}

	if o, ok := obj.(api.FlowAware); ok {
		o.SetFlow(actx.Flow)
	}
	if o, ok := obj.(api.PayloadAware); ok {
		o.SetPayload(actx.Payload)
	}
	if o, ok := obj.(api.EventAware); ok {
		o.SetEvent(actx.Event)
	}
	if o, ok := obj.(api.Preparable); ok {
		if err := o.Prepare(ctx); err != nil {
			return nil, &api.InvocationError{Class: ref.Class, Method: ref.Method, Err: fmt.Errorf("prepare: %w", err)}
		}
	}

	res, err := i.dispatcher.Dispatch(ctx, obj, ref.Method, actx)
	if err != nil {
		return nil, &api.InvocationError{Class: ref.Class, Method: ref.Method, Err: err}
	}
	return res, nil
}

func (i *Invoker) create(class string) (any, error) {
	if f, ok := i.classes.Lookup(class); ok {
		return newInstance(class, f)
	}

	if i.dir == "" {
		return nil, api.ErrActionDirectoryRequired
	}
	if i.loader == nil {
		return nil, fmt.Errorf("no loader for %s: %w", i.dir, api.ErrClassNotFound)
	}

	f, err := i.loader.Load(i.dir, class)
	if err != nil {
		if errors.Is(err, api.ErrClassNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load %s from %s: %w", class, i.dir, err)
	}
	if f == nil {
		return nil, fmt.Errorf("%s not found in %s: %w", class, i.dir, api.ErrClassNotFound)
	}
	return newInstance(class, f)
}

func newInstance(class string, f Factory) (any, error) {
	obj := f()
	if obj == nil {
		return nil, fmt.Errorf("factory for %s returned nil: %w", class, api.ErrClassNotFound)
	}
	return obj, nil
}
