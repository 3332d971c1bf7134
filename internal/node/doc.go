// Package node implements a replica of the ABD register emulation.
//
// A Node is a single-threaded state machine: Run feeds it one envelope at a
// time from its mailbox and no handler ever blocks. Waiting for a quorum is
// represented by per-operation state accumulated across deliveries. Each
// operation has two phases: a read phase that learns the newest tag held by
// a majority, and a write-back phase that stores a tag (fresh for puts, the
// learned one for gets) on a majority before the operation completes.
package node
