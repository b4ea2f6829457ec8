// Package pageflow provides a page-flow engine for Go web applications.
//
// A page flow is a finite state machine that drives a multi-step user
// interaction such as a registration wizard or a checkout. View states
// render a page and wait for the next request; action states run code and
// immediately move on. Each running flow is a continuation, addressed by
// an opaque ticket that the application round-trips through the browser.
//
// # Core Concepts
//
//  1. FlowDefinition and FlowBuilder
//  2. Action classes
//  3. Engine
//  4. Runner
//
// # Flow definitions
//
// A FlowDefinition names a first state, a last state and the view and
// action states in between, each with optional entry, exit and activity
// actions and a list of transitions. Definitions come from YAML files (see
// pkg/definition) or from FlowBuilder:
//
//	pageflow.New("Registration").
//	    ViewState("input", "register.html").
//	        On("submit", "check", pageflow.WithAction("validate")).
//	    ActionState("check").
//	        Activity("checkUser").
//	        On("ok", "done").
//	        On("taken", "input").
//	    Last("done", "welcome.html")
//
// Definitions are compiled when registered. The names INITIAL, FINAL and
// END are reserved; the compiler adds the END transition from the last
// state into FINAL.
//
// # Action classes
//
// Actions are methods on plain Go objects registered by class name in a
// Classes set. A reference without a class uses "<FlowName>Action". Each
// execution owns one instance per class. Methods take one of these forms:
//
//	func (a *T) Method(ctx context.Context, actx *pageflow.ActionContext) error
//	func (a *T) Method(ctx context.Context, actx *pageflow.ActionContext) (pageflow.Next, error)
//	func (a *T) Method(ctx context.Context, actx *pageflow.ActionContext) (bool, error)
//
// Activities and transition actions return pageflow.Emit("event") to fire
// a follow-up event; guards return (bool, error).
//
// # Engine
//
// The Engine maps tickets to executions. Every call through Continue or
// TriggerEvent counts as activity; tickets idle longer than the expiration
// are first marked and then swept by Collect. Swept tickets are recorded
// in a TombstoneStore (memory, SQLite, PostgreSQL, Redis or MongoDB) so a
// stale ticket reports ErrTicketSwept instead of ErrTicketNotFound.
//
// # Runner
//
// Runner bundles an Engine with a background sweeper configured from a
// Config, which LoadConfig reads from YAML and PAGEFLOW_* environment
// variables.
//
// For examples, see the /examples directory.
package pageflow
