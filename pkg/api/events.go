package api

import "time"

// TransitionRecord is a minimal append-only history entry for audit and
// debugging. It is intentionally small: do NOT dump payloads here.
type TransitionRecord struct {
	From  string
	To    string
	Event string
	At    time.Time
}

// Snapshot is a point-in-time copy of an execution's observable state,
// returned by the registry after dispatching an event.
type Snapshot struct {
	Ticket        string
	Flow          string
	State         string
	PreviousState string
	// View is empty when the current state has no view.
	View           string
	LastEventValid bool
	Final          bool
}

// SnapshotOf captures the observable state of f.
func SnapshotOf(f Flow) Snapshot {
	view, _ := f.View()
	return Snapshot{
		Ticket:         f.ID(),
		Flow:           f.Name(),
		State:          f.CurrentState(),
		PreviousState:  f.PreviousState(),
		View:           view,
		LastEventValid: f.LastEventValid(),
		Final:          f.IsFinal(),
	}
}
