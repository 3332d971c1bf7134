package repair

import (
	"abdkv/internal/clock"
	"abdkv/internal/msg"
)

// Response is a replica's answer to a read request.
type Response struct {
	From msg.Address
	Tag  clock.Tag
}

// ReconcileResult represents the result of reconciling a read quorum.
type ReconcileResult struct {
	// Winner is the greatest tag among the responses: maximum timestamp,
	// ties broken by maximum value.
	Winner clock.Tag
}

// Reconcile picks the winning tag from the given responses. Because tags are
// totally ordered there is always exactly one winner; with no responses the
// winner is the zero tag.
func Reconcile(responses []Response) ReconcileResult {
	tags := make([]clock.Tag, len(responses))
	for i, r := range responses {
		tags[i] = r.Tag
	}
	return ReconcileResult{Winner: clock.Max(tags...)}
}
