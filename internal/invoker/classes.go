package invoker

import (
	"fmt"
	"sync"
)

// Factory creates a fresh action object.
type Factory func() any

// Classes maps action class names to factories.
type Classes struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewClasses() *Classes {
	return &Classes{factories: make(map[string]Factory)}
}

// Register adds a class. Registering the same name twice is an error.
func (c *Classes) Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("class name is empty")
	}
	if f == nil {
		return fmt.Errorf("class %q: nil factory", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.factories[name]; exists {
		return fmt.Errorf("class %q already registered", name)
	}
	c.factories[name] = f
	return nil
}

// MustRegister is Register that panics on error.
func (c *Classes) MustRegister(name string, f Factory) {
	if err := c.Register(name, f); err != nil {
		panic(err)
	}
}

func (c *Classes) Lookup(name string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[name]
	return f, ok
}

// Loader provides classes that were not registered up front, looking them up
// below an action directory.
type Loader interface {
	// Load returns a factory for class, or an error wrapping
	// api.ErrClassNotFound when dir does not provide it.
	Load(dir, class string) (Factory, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(dir, class string) (Factory, error)

func (f LoaderFunc) Load(dir, class string) (Factory, error) {
	return f(dir, class)
}

// Scope holds the action instances of one flow execution: one instance per
// class, created on first use. Scopes never share instances.
type Scope struct {
	mu        sync.Mutex
	instances map[string]any
}

func NewScope() *Scope {
	return &Scope{instances: make(map[string]any)}
}

// Len returns the number of instances created in the scope.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.instances)
}

// Clear drops every instance.
func (s *Scope) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.instances)
}

func (s *Scope) instance(class string, create func() (any, error)) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if obj, ok := s.instances[class]; ok {
		return obj, nil
	}
	obj, err := create()
	if err != nil {
		return nil, err
	}
	s.instances[class] = obj
	return obj, nil
}
