// Package grpcnet carries envelopes between processes over gRPC.
//
// Every process runs a Server that owns the mailboxes of its local endpoints
// and accepts unary Deliver calls. A Transport keeps one outbound queue per
// destination, drained by a single goroutine that waits for each call to
// return before issuing the next, so envelopes to one destination arrive in
// the order they were sent. Failed calls are logged and not retried.
package grpcnet
