package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/petrijr/pageflow/internal/fsm"
	"github.com/petrijr/pageflow/pkg/api"
)

// flowRegistry holds compiled flow definitions by name.
type flowRegistry struct {
	mu     sync.RWMutex
	byName map[string]*fsm.Program
}

func newFlowRegistry() *flowRegistry {
	return &flowRegistry{
		byName: make(map[string]*fsm.Program),
	}
}

// Register compiles def. A definition error aborts the registration.
func (r *flowRegistry) Register(def api.FlowDefinition) error {
	prog, err := fsm.Compile(def)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[def.Name]; exists {
		return fmt.Errorf("flow %q: %w", def.Name, api.ErrFlowExists)
	}
	r.byName[def.Name] = prog
	return nil
}

func (r *flowRegistry) Get(name string) (*fsm.Program, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prog, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("flow %q: %w", name, api.ErrFlowNotFound)
	}
	return prog, nil
}

func (r *flowRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
