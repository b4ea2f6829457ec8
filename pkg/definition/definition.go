// Package definition reads flow definitions from YAML.
//
// A document looks like this:
//
//	name: Registration
//	first_state: Input
//	last_state:
//	  name: Finish
//	  view: done
//	initial: setUp
//	view_states:
//	  - name: Input
//	    view: form
//	    transitions:
//	      - event: submit
//	        next_state: Validate
//	action_states:
//	  - name: Validate
//	    activity: RegistrationAction::validate
//	    transitions:
//	      - {event: ok, next_state: Finish}
//	      - {event: fail, next_state: Input}
//
// Action references are written either as "method" (the class defaults to
// "<name>Action") or as "Class::method". The decoder only checks the shape
// of the document; the engine validates the definition when it is
// registered.
package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/petrijr/pageflow/pkg/api"
)

type document struct {
	Name         string       `yaml:"name"`
	FirstState   string       `yaml:"first_state"`
	LastState    *lastState   `yaml:"last_state"`
	Initial      *actionRef   `yaml:"initial"`
	Final        *actionRef   `yaml:"final"`
	ViewStates   []stateEntry `yaml:"view_states"`
	ActionStates []stateEntry `yaml:"action_states"`
}

type lastState struct {
	Name string `yaml:"name"`
	View string `yaml:"view"`
}

type stateEntry struct {
	Name        string       `yaml:"name"`
	View        string       `yaml:"view"`
	Entry       *actionRef   `yaml:"entry"`
	Exit        *actionRef   `yaml:"exit"`
	Activity    *actionRef   `yaml:"activity"`
	Transitions []transition `yaml:"transitions"`
}

type transition struct {
	Event     string     `yaml:"event"`
	NextState string     `yaml:"next_state"`
	Action    *actionRef `yaml:"action"`
	Guard     *actionRef `yaml:"guard"`
}

// actionRef accepts "method", "Class::method" or {class, method}.
type actionRef api.ActionRef

func (r *actionRef) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		ref, err := ParseActionRef(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*r = actionRef(ref)
		return nil
	case yaml.MappingNode:
		var m struct {
			Class  string `yaml:"class"`
			Method string `yaml:"method"`
		}
		if err := node.Decode(&m); err != nil {
			return err
		}
		if m.Method == "" {
			return fmt.Errorf("line %d: action without method", node.Line)
		}
		*r = actionRef{Class: m.Class, Method: m.Method}
		return nil
	default:
		return fmt.Errorf("line %d: action must be a string or a mapping", node.Line)
	}
}

// ParseActionRef parses "method" or "Class::method".
func ParseActionRef(s string) (api.ActionRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return api.ActionRef{}, errors.New("empty action reference")
	}
	class, method, found := strings.Cut(s, "::")
	if !found {
		return api.ActionRef{Method: s}, nil
	}
	if class == "" || method == "" {
		return api.ActionRef{}, fmt.Errorf("malformed action reference %q", s)
	}
	return api.ActionRef{Class: class, Method: method}, nil
}

// Decode reads one YAML document from r. Unknown keys are rejected.
func Decode(r io.Reader) (api.FlowDefinition, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return api.FlowDefinition{}, fmt.Errorf("failed to unmarshal flow definition: %w", err)
	}
	return doc.normalize()
}

// Parse decodes a definition held in memory.
func Parse(data []byte) (api.FlowDefinition, error) {
	return Decode(bytes.NewReader(data))
}

// Load reads a definition file.
func Load(path string) (api.FlowDefinition, error) {
	// #nosec G304 -- path is provided by the caller.
	f, err := os.Open(path)
	if err != nil {
		return api.FlowDefinition{}, fmt.Errorf("failed to read flow definition %s: %w", path, err)
	}
	defer f.Close()

	def, err := Decode(f)
	if err != nil {
		return api.FlowDefinition{}, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

func (d document) normalize() (api.FlowDefinition, error) {
	def := api.FlowDefinition{
		Name:       d.Name,
		FirstState: d.FirstState,
		Initial:    d.Initial.toAPI(),
		Final:      d.Final.toAPI(),
		States:     make(map[string]api.StateSpec, len(d.ViewStates)+len(d.ActionStates)),
	}
	if d.LastState != nil {
		def.LastState = &api.LastState{Name: d.LastState.Name, View: d.LastState.View}
	}

	add := func(kind api.StateKind, entries []stateEntry) error {
		for _, s := range entries {
			if s.Name == "" {
				return fmt.Errorf("%s state without name", kind)
			}
			if _, dup := def.States[s.Name]; dup {
				return fmt.Errorf("state %q declared twice", s.Name)
			}
			if kind == api.StateAction && s.View != "" {
				return fmt.Errorf("action state %q cannot have a view", s.Name)
			}
			spec := api.StateSpec{
				Kind:     kind,
				View:     s.View,
				Entry:    s.Entry.toAPI(),
				Exit:     s.Exit.toAPI(),
				Activity: s.Activity.toAPI(),
			}
			for _, t := range s.Transitions {
				spec.Transitions = append(spec.Transitions, api.TransitionSpec{
					Event:     t.Event,
					NextState: t.NextState,
					Action:    t.Action.toAPI(),
					Guard:     t.Guard.toAPI(),
				})
			}
			def.States[s.Name] = spec
		}
		return nil
	}

	if err := add(api.StateView, d.ViewStates); err != nil {
		return api.FlowDefinition{}, err
	}
	if err := add(api.StateAction, d.ActionStates); err != nil {
		return api.FlowDefinition{}, err
	}
	return def, nil
}

func (r *actionRef) toAPI() *api.ActionRef {
	if r == nil {
		return nil
	}
	ref := api.ActionRef(*r)
	return &ref
}
