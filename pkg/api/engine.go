package api

import (
	"context"
	"time"
)

// Registry owns the population of running flow executions, keyed by
// continuation ticket.
type Registry interface {
	// RegisterFlow compiles and registers a definition by name.
	RegisterFlow(def FlowDefinition) error

	// Start creates and starts a new execution of the named flow and returns
	// its ticket.
	Start(ctx context.Context, flow string, payload any) (string, error)

	// Continue gives fn exclusive access to the execution behind ticket and
	// counts as activity for the garbage collector.
	//
	// Returns ErrTicketExpired if the ticket is marked for removal,
	// ErrTicketSwept if it has been swept, ErrTicketNotFound otherwise.
	Continue(ctx context.Context, ticket string, fn func(ctx context.Context, exec Execution) error) error

	// TriggerEvent is Continue + Execution.TriggerEvent, returning a snapshot
	// of the execution afterwards.
	TriggerEvent(ctx context.Context, ticket string, event string) (Snapshot, error)

	// IsMarked reports whether ticket has been flagged for removal.
	IsMarked(ticket string) bool

	// Collect marks expired tickets and sweeps them. It returns the number
	// of executions removed.
	Collect(ctx context.Context) (int, error)

	// Purge forgets swept tickets whose sweep is older than retention.
	Purge(ctx context.Context, retention time.Duration) (int, error)
}
