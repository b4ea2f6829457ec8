package api

import (
	"errors"
	"fmt"
)

// Definition errors. Fatal at compile time; they abort flow registration.
var (
	ErrInvalidDefinition  = errors.New("invalid flow definition")
	ErrProtectedState     = errors.New("protected state name")
	ErrProtectedEvent     = errors.New("protected event name")
	ErrUnknownTargetState = errors.New("unknown target state")
)

// Runtime usage errors. Always surfaced to the caller.
var (
	ErrNotStarted     = errors.New("flow not started")
	ErrAlreadyStarted = errors.New("flow already started")
	ErrAlreadyFinal   = errors.New("flow already reached its final state")
	ErrNoView         = errors.New("state has no view")
	ErrCascadeLimit   = errors.New("event cascade too deep")
)

// Invocation errors. The engine never retries an action.
var (
	ErrMethodNotFound          = errors.New("action method not found")
	ErrClassNotFound           = errors.New("action class not found")
	ErrActionDirectoryRequired = errors.New("action directory required")
	ErrInvalidEvent            = errors.New("invalid event")
)

// Registry errors.
var (
	ErrFlowNotFound   = errors.New("flow not found")
	ErrFlowExists     = errors.New("flow already registered")
	ErrTicketNotFound = errors.New("ticket not found")
	ErrTicketExpired  = errors.New("ticket marked for removal")
	ErrTicketSwept    = errors.New("ticket swept")
)

// DefinitionError reports why a FlowDefinition could not be compiled.
type DefinitionError struct {
	Flow    string
	Subject string // offending state id, event name or field
	Err     error
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("flow %q: %v: %s", e.Flow, e.Err, e.Subject)
}

func (e *DefinitionError) Unwrap() error { return e.Err }

// UsageError reports a caller-misuse of a flow execution.
type UsageError struct {
	Op    string
	State string
	Err   error
}

func (e *UsageError) Error() string {
	if e.State == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s in state %q: %v", e.Op, e.State, e.Err)
}

func (e *UsageError) Unwrap() error { return e.Err }

// InvocationError reports a failed action invocation.
type InvocationError struct {
	Class  string
	Method string
	Event  string // set for ErrInvalidEvent
	Err    error
}

func (e *InvocationError) Error() string {
	if e.Event != "" {
		return fmt.Sprintf("%s::%s returned event %q: %v", e.Class, e.Method, e.Event, e.Err)
	}
	if e.Method == "" {
		return fmt.Sprintf("%s: %v", e.Class, e.Err)
	}
	return fmt.Sprintf("%s::%s: %v", e.Class, e.Method, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }
