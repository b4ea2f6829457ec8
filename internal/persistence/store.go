// Package persistence keeps a durable record of swept continuation tickets.
//
// Flow executions themselves are never persisted. A tombstone only says that
// a ticket existed and was swept, so a restarted process (or a stale client)
// cannot bring the ticket back.
package persistence

import (
	"context"
	"time"
)

// Tombstone records that a ticket was swept.
type Tombstone struct {
	Ticket  string
	Flow    string
	SweptAt time.Time
}

// TombstoneStore stores tombstones.
type TombstoneStore interface {
	// Bury records t. Burying a ticket twice keeps the first record.
	Bury(ctx context.Context, t Tombstone) error
	// IsBuried reports whether ticket has a tombstone.
	IsBuried(ctx context.Context, ticket string) (bool, error)
	// Purge deletes tombstones swept before the given time and returns how
	// many were deleted.
	Purge(ctx context.Context, before time.Time) (int, error)
}
