package quorum

import (
	"fmt"

	"abdkv/internal/msg"
)

// Majority returns floor(n/2)+1, the size of the smallest majority of n replicas.
func Majority(n int) int {
	return (n / 2) + 1
}

// Tolerated returns how many permanent crashes n replicas survive while a
// majority stays live.
func Tolerated(n int) int {
	if n <= 0 {
		return 0
	}
	return n - Majority(n)
}

// Tracker counts distinct senders toward a required threshold.
// A Tracker belongs to exactly one operation phase and is discarded when the
// next operation starts.
type Tracker struct {
	required int
	seen     map[msg.Address]struct{}
}

// NewTracker creates a tracker that is satisfied after required distinct senders.
func NewTracker(required int) *Tracker {
	return &Tracker{
		required: required,
		seen:     make(map[msg.Address]struct{}, required),
	}
}

// Add records a response from sender. counted is false if sender was already
// counted. reached is true only for the call that first meets the threshold.
func (t *Tracker) Add(sender msg.Address) (counted, reached bool) {
	if _, dup := t.seen[sender]; dup {
		return false, false
	}
	t.seen[sender] = struct{}{}
	return true, len(t.seen) == t.required
}

// String returns a summary such as "2/3".
func (t *Tracker) String() string {
	return fmt.Sprintf("%d/%d", len(t.seen), t.required)
}
