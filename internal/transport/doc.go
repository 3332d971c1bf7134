// Package transport delivers envelopes between endpoints. Every endpoint owns
// an unbounded FIFO mailbox, so Send never blocks the handler that calls it
// and envelopes from one sender to one receiver arrive in send order.
//
// MemoryNetwork connects endpoints living in the same process; the grpcnet
// subpackage carries the same envelopes between processes.
package transport
