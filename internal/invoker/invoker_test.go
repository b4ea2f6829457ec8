package invoker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/pageflow/pkg/api"
)

type wizardAction struct {
	hooks []string

	flow    api.Flow
	payload any
	event   string

	prepareErr error
}

func (a *wizardAction) SetFlow(flow api.Flow) {
	a.hooks = append(a.hooks, "setFlow")
	a.flow = flow
}

func (a *wizardAction) SetPayload(payload any) {
	a.hooks = append(a.hooks, "setPayload")
	a.payload = payload
}

func (a *wizardAction) SetEvent(event string) {
	a.hooks = append(a.hooks, "setEvent")
	a.event = event
}

func (a *wizardAction) Prepare(ctx context.Context) error {
	a.hooks = append(a.hooks, "prepare")
	return a.prepareErr
}

func (a *wizardAction) Validate(ctx context.Context, actx *api.ActionContext) (api.Next, error) {
	a.hooks = append(a.hooks, "validate")
	if actx.Payload == "bad" {
		return api.Emit("fail"), nil
	}
	return api.Emit("ok"), nil
}

func (a *wizardAction) IsComplete(ctx context.Context, actx *api.ActionContext) (bool, error) {
	return actx.Payload != nil, nil
}

func (a *wizardAction) Save(ctx context.Context, actx *api.ActionContext) error {
	if actx.Payload == "broken" {
		return errors.New("disk full")
	}
	return nil
}

func (a *wizardAction) Render(actx *api.ActionContext) string { return "" }

// plainAction implements no lifecycle hooks.
type plainAction struct{}

func (plainAction) Run(ctx context.Context, actx *api.ActionContext) error { return nil }

func newTestInvoker(t *testing.T, opts ...Option) (*Invoker, *int) {
	t.Helper()
	created := 0
	classes := NewClasses()
	classes.MustRegister("WizardAction", func() any {
		created++
		return &wizardAction{}
	})
	classes.MustRegister("Plain", func() any { return plainAction{} })
	return New(classes, opts...), &created
}

func TestInvoke_CallsHooksInOrder(t *testing.T) {
	inv, _ := newTestInvoker(t)
	scope := NewScope()

	res, err := inv.Invoke(context.Background(), scope, api.ActionRef{Class: "WizardAction", Method: "validate"},
		&api.ActionContext{Payload: "good", Event: "submit"})
	require.NoError(t, err)

	next, ok := res.(api.Next).Event()
	require.True(t, ok)
	assert.Equal(t, "ok", next)

	obj, _ := scope.instance("WizardAction", nil)
	a := obj.(*wizardAction)
	assert.Equal(t, []string{"setFlow", "setPayload", "setEvent", "prepare", "validate"}, a.hooks)
	assert.Equal(t, "good", a.payload)
	assert.Equal(t, "submit", a.event)
}

func TestInvoke_HooksAreOptional(t *testing.T) {
	inv, _ := newTestInvoker(t)
	res, err := inv.Invoke(context.Background(), NewScope(), api.ActionRef{Class: "Plain", Method: "run"}, nil)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestInvoke_SignatureShapes(t *testing.T) {
	inv, _ := newTestInvoker(t)
	scope := NewScope()
	ctx := context.Background()

	res, err := inv.Invoke(ctx, scope, api.ActionRef{Class: "WizardAction", Method: "isComplete"}, &api.ActionContext{})
	require.NoError(t, err)
	assert.Equal(t, false, res)

	_, err = inv.Invoke(ctx, scope, api.ActionRef{Class: "WizardAction", Method: "save"}, &api.ActionContext{Payload: "broken"})
	var invErr *api.InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, "WizardAction", invErr.Class)
	assert.Equal(t, "save", invErr.Method)
	assert.EqualError(t, errors.Unwrap(err), "disk full")
}

func TestInvoke_MethodNotFound(t *testing.T) {
	inv, _ := newTestInvoker(t)
	scope := NewScope()

	for _, method := range []string{"missing", "render"} {
		_, err := inv.Invoke(context.Background(), scope, api.ActionRef{Class: "WizardAction", Method: method}, nil)
		assert.ErrorIs(t, err, api.ErrMethodNotFound, method)
	}
}

func TestInvoke_InstancePerScope(t *testing.T) {
	inv, created := newTestInvoker(t)
	ref := api.ActionRef{Class: "WizardAction", Method: "validate"}
	ctx := context.Background()

	a, b := NewScope(), NewScope()
	for i := 0; i < 3; i++ {
		_, err := inv.Invoke(ctx, a, ref, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, *created)

	_, err := inv.Invoke(ctx, b, ref, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, *created)

	objA, _ := a.instance("WizardAction", nil)
	objB, _ := b.instance("WizardAction", nil)
	assert.NotSame(t, objA, objB)
	assert.Equal(t, 1, a.Len())
}

func TestInvoke_PrepareFailure(t *testing.T) {
	classes := NewClasses()
	classes.MustRegister("Failing", func() any { return &wizardAction{prepareErr: errors.New("no db")} })
	inv := New(classes)

	_, err := inv.Invoke(context.Background(), NewScope(), api.ActionRef{Class: "Failing", Method: "validate"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prepare: no db")
}

func TestInvoke_UnregisteredClassRequiresDirectory(t *testing.T) {
	inv, _ := newTestInvoker(t)
	_, err := inv.Invoke(context.Background(), NewScope(), api.ActionRef{Class: "Unknown", Method: "run"}, nil)
	assert.ErrorIs(t, err, api.ErrActionDirectoryRequired)
}

func TestInvoke_LoaderResolvesClasses(t *testing.T) {
	var seen []string
	loader := LoaderFunc(func(dir, class string) (Factory, error) {
		seen = append(seen, dir+"/"+class)
		if class == "Plain" || class == "Dynamic" {
			return func() any { return plainAction{} }, nil
		}
		return nil, api.ErrClassNotFound
	})
	inv := New(nil, WithLoader(loader, "actions"))
	ctx := context.Background()

	_, err := inv.Invoke(ctx, NewScope(), api.ActionRef{Class: "Dynamic", Method: "run"}, nil)
	require.NoError(t, err)

	_, err = inv.Invoke(ctx, NewScope(), api.ActionRef{Class: "Gone", Method: "run"}, nil)
	assert.ErrorIs(t, err, api.ErrClassNotFound)

	assert.Equal(t, []string{"actions/Dynamic", "actions/Gone"}, seen)
}

func TestInvoke_DirectoryWithoutLoaderIsClassNotFound(t *testing.T) {
	inv := New(nil, WithActionDirectory("actions"))
	_, err := inv.Invoke(context.Background(), NewScope(), api.ActionRef{Class: "X", Method: "run"}, nil)
	assert.ErrorIs(t, err, api.ErrClassNotFound)
}

func TestClasses_RejectsDuplicates(t *testing.T) {
	c := NewClasses()
	require.NoError(t, c.Register("A", func() any { return plainAction{} }))
	assert.Error(t, c.Register("A", func() any { return plainAction{} }))
	assert.Error(t, c.Register("", func() any { return plainAction{} }))
	assert.Error(t, c.Register("B", nil))
}

func TestCustomDispatcher(t *testing.T) {
	d := DispatcherFunc(func(ctx context.Context, obj any, method string, actx *api.ActionContext) (any, error) {
		return api.Emit(method), nil
	})
	inv, _ := newTestInvoker(t, WithDispatcher(d))

	res, err := inv.Invoke(context.Background(), NewScope(), api.ActionRef{Class: "Plain", Method: "anything"}, nil)
	require.NoError(t, err)
	ev, _ := res.(api.Next).Event()
	assert.Equal(t, "anything", ev)
}
