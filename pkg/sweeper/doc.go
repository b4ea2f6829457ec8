// Package sweeper runs the continuation garbage collector in the background.
//
// A Sweeper periodically asks a registry to collect idle continuations (mark
// then sweep) and to purge the records of tickets swept long ago. Errors are
// logged and the loop keeps going; the sweeper stops when its context is
// cancelled.
//
// Most applications get a sweeper through pageflow.Runner, which wires the
// registry, the sweeper and the configured intervals together.
package sweeper
