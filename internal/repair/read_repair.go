package repair

import (
	"abdkv/internal/clock"
)

// WriteBack describes the second phase of an operation.
type WriteBack struct {
	// Target is the tag broadcast in WriteRequests and expected back in Acks.
	Target clock.Tag
	// ReadResult is the value a read returns once Target is acknowledged by
	// a majority. It is meaningless for writes.
	ReadResult int
}

// PlanWrite returns the write-back for a put of value: a fresh tag one
// timestamp above the read quorum's winner.
func PlanWrite(result ReconcileResult, value int) WriteBack {
	return WriteBack{Target: result.Winner.Next(value)}
}

// PlanRead returns the write-back for a get: the winner itself is propagated
// so that no later read can observe an older tag.
func PlanRead(result ReconcileResult) WriteBack {
	return WriteBack{
		Target:     result.Winner,
		ReadResult: result.Winner.Value,
	}
}
