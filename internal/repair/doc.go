// Package repair provides reconciliation of the tags returned by a read
// quorum and plans the write-back phase that propagates the winning (or a
// fresh) tag to a majority before an operation completes.
package repair
