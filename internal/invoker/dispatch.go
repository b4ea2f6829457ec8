package invoker

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/petrijr/pageflow/pkg/api"
)

// Dispatcher calls a named method on an action object.
type Dispatcher interface {
	// Dispatch returns an error wrapping api.ErrMethodNotFound when obj has
	// no invocable method of that name.
	Dispatch(ctx context.Context, obj any, method string, actx *api.ActionContext) (any, error)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, obj any, method string, actx *api.ActionContext) (any, error)

func (f DispatcherFunc) Dispatch(ctx context.Context, obj any, method string, actx *api.ActionContext) (any, error) {
	return f(ctx, obj, method, actx)
}

type signature int

const (
	sigNext signature = iota + 1
	sigBool
	sigError
)

var (
	contextType   = reflect.TypeOf((*context.Context)(nil)).Elem()
	actionCtxType = reflect.TypeOf((*api.ActionContext)(nil))
	errorType     = reflect.TypeOf((*error)(nil)).Elem()
	nextType      = reflect.TypeOf(api.Next{})
	boolType      = reflect.TypeOf(false)
)

type methodKey struct {
	typ    reflect.Type
	method string
}

type methodInfo struct {
	index int
	sig   signature
}

// ReflectDispatcher resolves methods by name. "validate" in a definition
// selects the exported method Validate, which must have one of the shapes
//
//	func(context.Context, *api.ActionContext) (api.Next, error)
//	func(context.Context, *api.ActionContext) (bool, error)
//	func(context.Context, *api.ActionContext) error
//
// Lookups are cached per receiver type.
type ReflectDispatcher struct {
	cache sync.Map // methodKey -> methodInfo
}

func (d *ReflectDispatcher) Dispatch(ctx context.Context, obj any, method string, actx *api.ActionContext) (any, error) {
	v := reflect.ValueOf(obj)
	if !v.IsValid() {
		return nil, fmt.Errorf("nil action object: %w", api.ErrMethodNotFound)
	}

	info, err := d.lookup(v.Type(), method)
	if err != nil {
		return nil, err
	}

	out := v.Method(info.index).Call([]reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(actx)})

	switch info.sig {
	case sigNext:
		return out[0].Interface().(api.Next), asError(out[1])
	case sigBool:
		return out[0].Bool(), asError(out[1])
	default:
		return nil, asError(out[0])
	}
}

func (d *ReflectDispatcher) lookup(t reflect.Type, method string) (methodInfo, error) {
	key := methodKey{typ: t, method: method}
	if cached, ok := d.cache.Load(key); ok {
		return cached.(methodInfo), nil
	}

	m, ok := t.MethodByName(exportedName(method))
	if !ok {
		return methodInfo{}, fmt.Errorf("%s has no method %q: %w", t, method, api.ErrMethodNotFound)
	}
	sig := classify(m.Type)
	if sig == 0 {
		return methodInfo{}, fmt.Errorf("%s.%s has unsupported signature %s: %w", t, m.Name, m.Type, api.ErrMethodNotFound)
	}

	info := methodInfo{index: m.Index, sig: sig}
	d.cache.Store(key, info)
	return info, nil
}

// classify inspects a method type obtained from a reflect.Type, so In(0) is
// the receiver.
func classify(ft reflect.Type) signature {
	if ft.NumIn() != 3 || ft.In(1) != contextType || ft.In(2) != actionCtxType {
		return 0
	}
	switch ft.NumOut() {
	case 1:
		if ft.Out(0) == errorType {
			return sigError
		}
	case 2:
		if ft.Out(1) != errorType {
			return 0
		}
		switch ft.Out(0) {
		case nextType:
			return sigNext
		case boolType:
			return sigBool
		}
	}
	return 0
}

func exportedName(method string) string {
	r, size := utf8.DecodeRuneInString(method)
	if r == utf8.RuneError {
		return method
	}
	return string(unicode.ToUpper(r)) + method[size:]
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}
